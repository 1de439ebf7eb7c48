package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds how old a webhook timestamp may be before the
// payload is rejected as a replay.
const DefaultTolerance = 300 * time.Second

// signatureHeader is the parsed form of a Stripe-Signature header:
// "t=<unix>,v1=<hex>[,v1=<hex>...]". Multiple v1 entries appear while an
// endpoint secret is being rotated.
type signatureHeader struct {
	timestamp  int64
	signatures [][]byte
}

func parseSignatureHeader(header string) (signatureHeader, error) {
	var out signatureHeader
	if strings.TrimSpace(header) == "" {
		return out, fmt.Errorf("%w: empty signature header", ErrInvalidSignature)
	}
	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return out, fmt.Errorf("%w: malformed signature header", ErrInvalidSignature)
		}
		switch parts[0] {
		case "t":
			ts, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return out, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			out.timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(parts[1])
			if err != nil {
				continue // ignore undecodable candidates, others may match
			}
			out.signatures = append(out.signatures, sig)
		}
	}
	if out.timestamp == 0 || len(out.signatures) == 0 {
		return out, fmt.Errorf("%w: missing timestamp or signature", ErrInvalidSignature)
	}
	return out, nil
}

// computeSignature returns HMAC-SHA256(secret, "<timestamp>.<payload>"),
// the scheme Stripe signs webhook deliveries with.
func computeSignature(timestamp int64, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return mac.Sum(nil)
}

// VerifyEvent authenticates a raw webhook delivery and returns the parsed
// event envelope. It fails with ErrInvalidSignature when no header digest
// matches the recomputed one, with ErrStalePayload when the signed timestamp
// is older than tolerance, and with ErrMalformedPayload when the body is not
// a valid event. It has no side effects; nothing may be dispatched before
// this check passes.
func VerifyEvent(payload []byte, header, secret string, tolerance time.Duration, now time.Time) (Event, error) {
	parsed, err := parseSignatureHeader(header)
	if err != nil {
		return Event{}, err
	}

	expected := computeSignature(parsed.timestamp, payload, secret)
	match := false
	for _, sig := range parsed.signatures {
		if hmac.Equal(expected, sig) {
			match = true
			break
		}
	}
	if !match {
		return Event{}, ErrInvalidSignature
	}

	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if now.Sub(time.Unix(parsed.timestamp, 0)) > tolerance {
		return Event{}, ErrStalePayload
	}

	return ParseEvent(payload)
}

package billing

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/payments"
	"github.com/gofiber/fiber/v2/log"
)

// CustomerService manages the remote customer identity and the payment
// methods attached to it. The local cards table is a cache of the gateway's
// list; SyncPaymentMethods makes it authoritative again.
type CustomerService struct {
	repo Repository
	gw   payments.Gateway
}

func NewCustomerService(repo Repository, gw payments.Gateway) *CustomerService {
	return &CustomerService{repo: repo, gw: gw}
}

// CreateCustomer ensures the user exists as a remote customer and stores the
// customer id on the user. Calling it for a user that already has one is a
// no-op returning the stored id.
func (s *CustomerService) CreateCustomer(ctx context.Context, userID uint) (string, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return "", fmt.Errorf("load user %d: %w", userID, err)
	}
	if user.HasStripeID() {
		return user.GetStripeID(), nil
	}

	customer, err := s.gw.CreateCustomer(ctx, payments.CustomerParams{
		Name:  user.Name,
		Email: user.Email,
		Metadata: map[string]string{
			"user_id": fmt.Sprintf("%d", user.ID),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create customer for user %d: %w", userID, err)
	}

	if err := s.repo.SetUserStripeID(user.ID, customer.ID); err != nil {
		log.Errorf("[Billing] Customer %s created remotely but local write failed: %v", customer.ID, err)
		return "", fmt.Errorf("store customer id for user %d: %w", userID, err)
	}

	log.Infof("[Billing] Created customer %s for user %d", customer.ID, user.ID)
	return customer.ID, nil
}

// UpdateCustomer pushes the user's current name and email to the gateway.
func (s *CustomerService) UpdateCustomer(ctx context.Context, userID uint) error {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	if !user.HasStripeID() {
		return ErrMissingRemoteIdentity
	}

	_, err = s.gw.UpdateCustomer(ctx, user.GetStripeID(), payments.CustomerParams{
		Name:  user.Name,
		Email: user.Email,
	})
	if err != nil {
		return fmt.Errorf("update customer %s: %w", user.GetStripeID(), err)
	}
	return nil
}

// CreateSetupIntent returns the client secret the frontend needs to collect
// a new payment method for the user.
func (s *CustomerService) CreateSetupIntent(ctx context.Context, userID uint) (*payments.SetupIntent, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !user.HasStripeID() {
		return nil, ErrMissingRemoteIdentity
	}

	intent, err := s.gw.CreateSetupIntent(ctx, user.GetStripeID())
	if err != nil {
		return nil, fmt.Errorf("create setup intent for customer %s: %w", user.GetStripeID(), err)
	}
	return intent, nil
}

// StorePaymentMethod attaches a collected payment method to the customer and
// mirrors it as a card row, optionally making it the default.
func (s *CustomerService) StorePaymentMethod(ctx context.Context, userID uint, paymentMethodID string, makeDefault bool) (*models.Card, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !user.HasStripeID() {
		return nil, ErrMissingRemoteIdentity
	}

	pm, err := s.gw.AttachPaymentMethod(ctx, user.GetStripeID(), paymentMethodID)
	if err != nil {
		return nil, fmt.Errorf("attach payment method %s: %w", paymentMethodID, err)
	}

	card := cardFromPaymentMethod(user.ID, pm)
	if err := s.repo.UpsertCardByPaymentMethodID(card); err != nil {
		return nil, fmt.Errorf("store card %s: %w", pm.ID, err)
	}

	if makeDefault {
		if err := s.setDefault(ctx, user, pm.ID); err != nil {
			return nil, err
		}
		card.IsDefault = true
	}

	log.Infof("[Billing] Stored payment method %s for user %d (default=%t)", pm.ID, user.ID, makeDefault)
	return card, nil
}

// RemovePaymentMethod detaches the payment method remotely and drops the
// local card row.
func (s *CustomerService) RemovePaymentMethod(ctx context.Context, userID uint, paymentMethodID string) error {
	if err := s.gw.DetachPaymentMethod(ctx, paymentMethodID); err != nil {
		return fmt.Errorf("detach payment method %s: %w", paymentMethodID, err)
	}
	if err := s.repo.DeleteCard(userID, paymentMethodID); err != nil {
		return fmt.Errorf("delete card %s: %w", paymentMethodID, err)
	}

	log.Infof("[Billing] Removed payment method %s for user %d", paymentMethodID, userID)
	return nil
}

// SetDefaultPaymentMethod makes the payment method the customer's default
// for invoices, remotely and locally.
func (s *CustomerService) SetDefaultPaymentMethod(ctx context.Context, userID uint, paymentMethodID string) error {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}
	if !user.HasStripeID() {
		return ErrMissingRemoteIdentity
	}
	return s.setDefault(ctx, user, paymentMethodID)
}

// SyncPaymentMethods replaces the local card cache with the gateway's
// current list, removing cards that no longer exist remotely.
func (s *CustomerService) SyncPaymentMethods(ctx context.Context, userID uint) ([]models.Card, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !user.HasStripeID() {
		return nil, ErrMissingRemoteIdentity
	}

	remote, err := s.gw.ListPaymentMethods(ctx, user.GetStripeID())
	if err != nil {
		return nil, fmt.Errorf("list payment methods of customer %s: %w", user.GetStripeID(), err)
	}

	keep := make([]string, 0, len(remote))
	for i := range remote {
		card := cardFromPaymentMethod(user.ID, &remote[i])
		if err := s.repo.UpsertCardByPaymentMethodID(card); err != nil {
			return nil, fmt.Errorf("store card %s: %w", remote[i].ID, err)
		}
		keep = append(keep, remote[i].ID)
	}
	if err := s.repo.DeleteCardsNotIn(user.ID, keep); err != nil {
		return nil, fmt.Errorf("prune stale cards of user %d: %w", user.ID, err)
	}

	log.Infof("[Billing] Synced %d payment methods for user %d", len(remote), user.ID)
	return s.repo.ListCardsByUser(user.ID)
}

// ListCards returns the cached cards of the user.
func (s *CustomerService) ListCards(userID uint) ([]models.Card, error) {
	return s.repo.ListCardsByUser(userID)
}

func (s *CustomerService) setDefault(ctx context.Context, user *models.User, paymentMethodID string) error {
	if err := s.gw.SetDefaultPaymentMethod(ctx, user.GetStripeID(), paymentMethodID); err != nil {
		return fmt.Errorf("set default payment method %s: %w", paymentMethodID, err)
	}
	if err := s.repo.SetDefaultCard(user.ID, paymentMethodID); err != nil {
		return fmt.Errorf("store default card %s: %w", paymentMethodID, err)
	}
	return nil
}

func cardFromPaymentMethod(userID uint, pm *payments.PaymentMethod) *models.Card {
	return &models.Card{
		UserID:                userID,
		StripePaymentMethodID: pm.ID,
		Brand:                 pm.Brand,
		LastFour:              pm.LastFour,
		ExpMonth:              pm.ExpMonth,
		ExpYear:               pm.ExpYear,
	}
}

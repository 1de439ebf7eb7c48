package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/payments"
	"github.com/gofiber/fiber/v2/log"
)

// ProductInput is the creatable/updatable slice of a product.
type ProductInput struct {
	Name        string
	Description string
	Metadata    map[string]string
}

// PriceInput describes a new price. Currency falls back to the configured
// default; Recurring prices need an interval.
type PriceInput struct {
	Nickname        string
	UnitAmount      int64
	Currency        string
	Recurring       bool
	Interval        string
	IntervalCount   int64
	TrialPeriodDays int64
	Metadata        map[string]string
}

// PriceUpdateInput carries the only price fields that may change after
// creation.
type PriceUpdateInput struct {
	Nickname *string
	Active   *bool
	Metadata map[string]string
}

// CatalogService manages products and prices, remote-first. Deletion is
// archiving on both sides: rows and remote objects flip to inactive and keep
// their history.
type CatalogService struct {
	repo            Repository
	gw              payments.Gateway
	defaultCurrency string
}

func NewCatalogService(repo Repository, gw payments.Gateway, defaultCurrency string) *CatalogService {
	return &CatalogService{repo: repo, gw: gw, defaultCurrency: defaultCurrency}
}

func (s *CatalogService) CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error) {
	remote, err := s.gw.CreateProduct(ctx, payments.ProductParams{
		Name:        input.Name,
		Description: input.Description,
		Metadata:    input.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create product %q: %w", input.Name, err)
	}

	product := &models.Product{
		StripeID:    remote.ID,
		Name:        remote.Name,
		Description: remote.Description,
		Active:      remote.Active,
		Metadata:    remote.Metadata,
	}
	if err := s.repo.CreateProduct(product); err != nil {
		log.Errorf("[Billing] Product %s created remotely but local write failed: %v", remote.ID, err)
		return nil, fmt.Errorf("store product %s: %w", remote.ID, err)
	}

	log.Infof("[Billing] Created product %s (%q)", remote.ID, remote.Name)
	return product, nil
}

func (s *CatalogService) UpdateProduct(ctx context.Context, productID uint, input ProductInput) (*models.Product, error) {
	product, err := s.repo.GetProductByID(productID)
	if err != nil {
		return nil, fmt.Errorf("load product %d: %w", productID, err)
	}

	remote, err := s.gw.UpdateProduct(ctx, product.StripeID, payments.ProductParams{
		Name:        input.Name,
		Description: input.Description,
		Metadata:    input.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("update product %s: %w", product.StripeID, err)
	}

	product.Name = remote.Name
	product.Description = remote.Description
	product.Active = remote.Active
	if len(remote.Metadata) > 0 {
		product.Metadata = remote.Metadata
	}
	if err := s.repo.SaveProduct(product); err != nil {
		return nil, fmt.Errorf("store product %s: %w", product.StripeID, err)
	}
	return product, nil
}

// ArchiveProduct deactivates the product remotely and locally. Existing
// subscriptions keep running; new subscriptions can no longer pick it.
func (s *CatalogService) ArchiveProduct(ctx context.Context, productID uint) error {
	product, err := s.repo.GetProductByID(productID)
	if err != nil {
		return fmt.Errorf("load product %d: %w", productID, err)
	}

	active := false
	if _, err := s.gw.UpdateProduct(ctx, product.StripeID, payments.ProductParams{
		Name:   product.Name,
		Active: &active,
	}); err != nil {
		return fmt.Errorf("archive product %s: %w", product.StripeID, err)
	}

	product.Active = false
	if err := s.repo.SaveProduct(product); err != nil {
		return fmt.Errorf("store product %s: %w", product.StripeID, err)
	}

	log.Infof("[Billing] Archived product %s", product.StripeID)
	return nil
}

func (s *CatalogService) GetProduct(productID uint) (*models.Product, error) {
	return s.repo.GetProductByID(productID)
}

func (s *CatalogService) ListProducts() ([]models.Product, error) {
	return s.repo.ListProducts()
}

func (s *CatalogService) CreatePrice(ctx context.Context, productID uint, input PriceInput) (*models.ProductPricing, error) {
	product, err := s.repo.GetProductByID(productID)
	if err != nil {
		return nil, fmt.Errorf("load product %d: %w", productID, err)
	}

	currency := strings.ToLower(input.Currency)
	if currency == "" {
		currency = s.defaultCurrency
	}
	intervalCount := input.IntervalCount
	if input.Recurring && intervalCount <= 0 {
		intervalCount = 1
	}

	remote, err := s.gw.CreatePrice(ctx, payments.PriceParams{
		ProductID:       product.StripeID,
		Nickname:        input.Nickname,
		UnitAmount:      input.UnitAmount,
		Currency:        currency,
		Recurring:       input.Recurring,
		Interval:        input.Interval,
		IntervalCount:   intervalCount,
		TrialPeriodDays: input.TrialPeriodDays,
		Metadata:        input.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create price for product %s: %w", product.StripeID, err)
	}

	pricing := pricingFromRemote(product.ID, remote)
	if err := s.repo.CreatePricing(pricing); err != nil {
		log.Errorf("[Billing] Price %s created remotely but local write failed: %v", remote.ID, err)
		return nil, fmt.Errorf("store price %s: %w", remote.ID, err)
	}

	log.Infof("[Billing] Created price %s (%d %s) for product %s", remote.ID, remote.UnitAmount, currency, product.StripeID)
	return pricing, nil
}

// UpdatePrice changes nickname, active flag or metadata. The economic fields
// are immutable; a different amount means a new price.
func (s *CatalogService) UpdatePrice(ctx context.Context, pricingID uint, input PriceUpdateInput) (*models.ProductPricing, error) {
	pricing, err := s.repo.GetPricingByID(pricingID)
	if err != nil {
		return nil, fmt.Errorf("load pricing %d: %w", pricingID, err)
	}

	remote, err := s.gw.UpdatePrice(ctx, pricing.StripePriceID, payments.PriceUpdateParams{
		Nickname: input.Nickname,
		Active:   input.Active,
		Metadata: input.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("update price %s: %w", pricing.StripePriceID, err)
	}

	pricing.Nickname = remote.Nickname
	pricing.Active = remote.Active
	if len(remote.Metadata) > 0 {
		pricing.Metadata = remote.Metadata
	}
	if err := s.repo.SavePricing(pricing); err != nil {
		return nil, fmt.Errorf("store price %s: %w", pricing.StripePriceID, err)
	}
	return pricing, nil
}

// ArchivePrice deactivates the price remotely and locally.
func (s *CatalogService) ArchivePrice(ctx context.Context, pricingID uint) error {
	active := false
	_, err := s.UpdatePrice(ctx, pricingID, PriceUpdateInput{Active: &active})
	return err
}

func (s *CatalogService) ListPrices(productID uint) ([]models.ProductPricing, error) {
	return s.repo.ListPricingByProduct(productID)
}

// SyncProducts pulls up to limit products from the gateway and upserts the
// local mirror, prices included.
func (s *CatalogService) SyncProducts(ctx context.Context, limit int64) (int, error) {
	remote, err := s.gw.ListProducts(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list products: %w", err)
	}

	for i := range remote {
		product := &models.Product{
			StripeID:    remote[i].ID,
			Name:        remote[i].Name,
			Description: remote[i].Description,
			Active:      remote[i].Active,
			Metadata:    remote[i].Metadata,
		}
		if err := s.repo.UpsertProductByStripeID(product); err != nil {
			return 0, fmt.Errorf("store product %s: %w", remote[i].ID, err)
		}
		if err := s.SyncPrices(ctx, product.ID); err != nil {
			return 0, err
		}
	}

	log.Infof("[Billing] Synced %d products", len(remote))
	return len(remote), nil
}

// SyncPrices pulls the gateway's prices of one product and upserts the local
// mirror.
func (s *CatalogService) SyncPrices(ctx context.Context, productID uint) error {
	product, err := s.repo.GetProductByID(productID)
	if err != nil {
		return fmt.Errorf("load product %d: %w", productID, err)
	}

	remote, err := s.gw.ListPrices(ctx, product.StripeID)
	if err != nil {
		return fmt.Errorf("list prices of product %s: %w", product.StripeID, err)
	}

	for i := range remote {
		pricing := pricingFromRemote(product.ID, &remote[i])
		if err := s.repo.UpsertPricingByStripeID(pricing); err != nil {
			return fmt.Errorf("store price %s: %w", remote[i].ID, err)
		}
	}
	return nil
}

func pricingFromRemote(productID uint, remote *payments.Price) *models.ProductPricing {
	pricing := &models.ProductPricing{
		ProductID:          productID,
		StripePriceID:      remote.ID,
		Nickname:           remote.Nickname,
		UnitAmount:         remote.UnitAmount,
		Currency:           remote.Currency,
		Type:               remote.Type,
		BillingPeriod:      remote.Interval,
		BillingPeriodCount: remote.IntervalCount,
		Active:             remote.Active,
		Metadata:           remote.Metadata,
	}
	if remote.TrialPeriodDays > 0 {
		days := remote.TrialPeriodDays
		pricing.TrialPeriodDays = &days
	}
	return pricing
}

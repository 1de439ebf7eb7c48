package controllers

import (
	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/gofiber/fiber/v2"
)

// ProductController exposes the catalog as JSON endpoints.
type ProductController struct {
	catalog *billing.CatalogService
}

func NewProductController(catalog *billing.CatalogService) *ProductController {
	return &ProductController{catalog: catalog}
}

type createProductRequest struct {
	Name        string            `json:"name" validate:"required,min=1,max=191"`
	Description string            `json:"description" validate:"max=5000"`
	Metadata    map[string]string `json:"metadata"`
}

type createPriceRequest struct {
	Nickname        string            `json:"nickname" validate:"max=191"`
	UnitAmount      int64             `json:"unit_amount" validate:"required,gt=0"`
	Currency        string            `json:"currency" validate:"omitempty,len=3"`
	Type            string            `json:"type" validate:"omitempty,oneof=one_time recurring"`
	Interval        string            `json:"interval" validate:"omitempty,oneof=day week month year"`
	IntervalCount   int64             `json:"interval_count" validate:"omitempty,gt=0"`
	TrialPeriodDays int64             `json:"trial_period_days" validate:"omitempty,gte=0"`
	Metadata        map[string]string `json:"metadata"`
}

type updatePriceRequest struct {
	Nickname *string           `json:"nickname" validate:"omitempty,max=191"`
	Active   *bool             `json:"active"`
	Metadata map[string]string `json:"metadata"`
}

type syncProductsRequest struct {
	Limit int64 `json:"limit" validate:"omitempty,gt=0,lte=100"`
}

func (pc *ProductController) HandleCreateProduct(c *fiber.Ctx) error {
	var req createProductRequest
	if !parseBody(c, &req) {
		return nil
	}

	product, err := pc.catalog.CreateProduct(c.UserContext(), billing.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(product)
}

func (pc *ProductController) HandleListProducts(c *fiber.Ctx) error {
	products, err := pc.catalog.ListProducts()
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"products": products, "count": len(products)})
}

func (pc *ProductController) HandleGetProduct(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	product, err := pc.catalog.GetProduct(id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(product)
}

func (pc *ProductController) HandleUpdateProduct(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	var req createProductRequest
	if !parseBody(c, &req) {
		return nil
	}

	product, err := pc.catalog.UpdateProduct(c.UserContext(), id, billing.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(product)
}

// HandleArchiveProduct deactivates a product. Nothing is deleted; remote
// objects with subscription history cannot be removed.
func (pc *ProductController) HandleArchiveProduct(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	if err := pc.catalog.ArchiveProduct(c.UserContext(), id); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"archived": true})
}

func (pc *ProductController) HandleCreatePrice(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	var req createPriceRequest
	if !parseBody(c, &req) {
		return nil
	}

	pricing, err := pc.catalog.CreatePrice(c.UserContext(), id, billing.PriceInput{
		Nickname:        req.Nickname,
		UnitAmount:      req.UnitAmount,
		Currency:        req.Currency,
		Recurring:       req.Type != models.PricingTypeOneTime,
		Interval:        req.Interval,
		IntervalCount:   req.IntervalCount,
		TrialPeriodDays: req.TrialPeriodDays,
		Metadata:        req.Metadata,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(pricing)
}

func (pc *ProductController) HandleListPrices(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	prices, err := pc.catalog.ListPrices(id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"prices": prices, "count": len(prices)})
}

func (pc *ProductController) HandleUpdatePrice(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	var req updatePriceRequest
	if !parseBody(c, &req) {
		return nil
	}

	pricing, err := pc.catalog.UpdatePrice(c.UserContext(), id, billing.PriceUpdateInput{
		Nickname: req.Nickname,
		Active:   req.Active,
		Metadata: req.Metadata,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(pricing)
}

func (pc *ProductController) HandleArchivePrice(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	if err := pc.catalog.ArchivePrice(c.UserContext(), id); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"archived": true})
}

// HandleSyncProducts pulls the remote catalog into the local mirror.
func (pc *ProductController) HandleSyncProducts(c *fiber.Ctx) error {
	req := syncProductsRequest{Limit: 50}
	if len(c.Body()) > 0 && !parseBody(c, &req) {
		return nil
	}

	count, err := pc.catalog.SyncProducts(c.UserContext(), req.Limit)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"synced": count})
}

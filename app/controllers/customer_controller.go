package controllers

import (
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/gofiber/fiber/v2"
)

// CustomerController exposes customer identity and payment method management
// as JSON endpoints.
type CustomerController struct {
	customers *billing.CustomerService
}

func NewCustomerController(customers *billing.CustomerService) *CustomerController {
	return &CustomerController{customers: customers}
}

type storePaymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
	Default         bool   `json:"default"`
}

// HandleCreateCustomer links the user to a remote customer. Repeat calls
// return the already stored id.
func (cc *CustomerController) HandleCreateCustomer(c *fiber.Ctx) error {
	userID, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	customerID, err := cc.customers.CreateCustomer(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"stripe_customer_id": customerID})
}

func (cc *CustomerController) HandleUpdateCustomer(c *fiber.Ctx) error {
	userID, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	if err := cc.customers.UpdateCustomer(c.UserContext(), userID); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"updated": true})
}

func (cc *CustomerController) HandleCreateSetupIntent(c *fiber.Ctx) error {
	userID, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	intent, err := cc.customers.CreateSetupIntent(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"id": intent.ID, "client_secret": intent.ClientSecret})
}

func (cc *CustomerController) HandleStorePaymentMethod(c *fiber.Ctx) error {
	userID, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	var req storePaymentMethodRequest
	if !parseBody(c, &req) {
		return nil
	}

	card, err := cc.customers.StorePaymentMethod(c.UserContext(), userID, req.PaymentMethodID, req.Default)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(card)
}

func (cc *CustomerController) HandleListPaymentMethods(c *fiber.Ctx) error {
	userID, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	cards, err := cc.customers.ListCards(userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"cards": cards, "count": len(cards)})
}

func (cc *CustomerController) HandleRemovePaymentMethod(c *fiber.Ctx) error {
	userID, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	pmID := c.Params("pm")
	if pmID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing payment method id"})
	}

	if err := cc.customers.RemovePaymentMethod(c.UserContext(), userID, pmID); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"removed": true})
}

func (cc *CustomerController) HandleSetDefaultPaymentMethod(c *fiber.Ctx) error {
	userID, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	pmID := c.Params("pm")
	if pmID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Missing payment method id"})
	}

	if err := cc.customers.SetDefaultPaymentMethod(c.UserContext(), userID, pmID); err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"default": pmID})
}

// HandleSyncPaymentMethods replaces the cached cards with the gateway's
// current list.
func (cc *CustomerController) HandleSyncPaymentMethods(c *fiber.Ctx) error {
	userID, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	cards, err := cc.customers.SyncPaymentMethods(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"cards": cards, "count": len(cards)})
}

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"localhost-events/internal/models"
	"localhost-events/internal/services"
	"localhost-events/internal/utils"
)

// Settler is the settlement engine as the HTTP layer sees it.
type Settler interface {
	Settle(ctx context.Context, req *models.SettlementRequest) (*models.SettlementResult, error)
}

// CheckoutProvider creates hosted checkout sessions and resolves them back
// into settlement requests.
type CheckoutProvider interface {
	CreateSession(ctx context.Context, req *models.CheckoutRequest) (*models.CheckoutResponse, error)
	LookupConfirmation(ctx context.Context, sessionID string) (*models.SettlementRequest, error)
}

type PurchaseHandler struct {
	checkout   CheckoutProvider
	settlement Settler
}

func NewPurchaseHandler(checkout CheckoutProvider, settlement Settler) *PurchaseHandler {
	return &PurchaseHandler{
		checkout:   checkout,
		settlement: settlement,
	}
}

// CreateCheckout starts a hosted checkout for one ticket type.
func (h *PurchaseHandler) CreateCheckout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	resp, err := h.checkout.CreateSession(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnitNotFound):
			c.JSON(http.StatusNotFound, utils.ErrorResponse("Ticket type not found", ""))
		case errors.Is(err, services.ErrUnitUnavailable):
			c.JSON(http.StatusConflict, utils.ErrorResponse("Ticket type is sold out or no longer on sale", ""))
		case errors.Is(err, services.ErrStoreUnavailable):
			c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Temporarily unavailable, please retry", ""))
		default:
			c.JSON(http.StatusBadGateway, utils.ErrorResponse("Checkout provider error", err.Error()))
		}
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Checkout session created", resp))
}

// VerifyPurchase is the return trip from hosted checkout: the success page
// posts the session id, we ask the payment provider what happened, and the
// settlement engine decides idempotently whether a ticket is minted.
func (h *PurchaseHandler) VerifyPurchase(c *gin.Context) {
	var req models.VerifyPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	confirmation, err := h.checkout.LookupConfirmation(c.Request.Context(), req.SessionID)
	if err != nil {
		c.JSON(http.StatusBadGateway, utils.ErrorResponse("Failed to look up payment session", err.Error()))
		return
	}

	h.settle(c, confirmation)
}

// SettleDirect accepts a fully-formed settlement request from trusted
// internal callers (signature verification happens upstream).
func (h *PurchaseHandler) SettleDirect(c *gin.Context) {
	var req models.SettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	h.settle(c, &req)
}

func (h *PurchaseHandler) settle(c *gin.Context, req *models.SettlementRequest) {
	result, err := h.settlement.Settle(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPaymentNotCompleted):
			c.JSON(http.StatusPaymentRequired, utils.ErrorResponse("Payment not completed", ""))
		case errors.Is(err, services.ErrInvalidReference):
			c.JSON(http.StatusUnprocessableEntity, utils.ErrorResponse("Invalid transaction data", ""))
		case errors.Is(err, services.ErrSoldOut):
			// Distinguishable from generic failure so the storefront can
			// show "sold out" instead of an error page.
			c.JSON(http.StatusConflict, utils.ErrorResponse("Sold out", ""))
		case errors.Is(err, services.ErrStoreUnavailable):
			c.JSON(http.StatusServiceUnavailable, utils.ErrorResponse("Temporarily unavailable, please retry", ""))
		default:
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Settlement failed", err.Error()))
		}
		return
	}

	switch result.Outcome {
	case models.OutcomeAlreadyProcessed:
		c.JSON(http.StatusOK, utils.SuccessResponse("Order already processed", result))
	default:
		c.JSON(http.StatusOK, utils.SuccessResponse("Purchase settled", result))
	}
}

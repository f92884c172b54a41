package handlers

import (
	"errors"
	"net/http"

	"agentpay/internal/common"
	"agentpay/internal/models"
	"agentpay/internal/services"

	"github.com/labstack/echo/v4"
)

// PaymentHandlers handles HTTP requests for pay-per-use settlements
type PaymentHandlers struct {
	billingService services.BillingService
}

// NewPaymentHandlers creates a new payment handlers instance
func NewPaymentHandlers(billingService services.BillingService) *PaymentHandlers {
	return &PaymentHandlers{billingService: billingService}
}

// ChargeFeature handles POST /payments
func (h *PaymentHandlers) ChargeFeature(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req struct {
		Feature  string            `json:"feature"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.Feature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Feature is required")
	}

	txn, err := h.billingService.ChargeForFeature(ctx, userID, req.Feature, req.Metadata)
	if err != nil {
		var valErr *models.ValidationError
		var payReq *models.PaymentRequired
		var payFail *models.PaymentFailed
		switch {
		case errors.As(err, &valErr):
			return echo.NewHTTPError(http.StatusBadRequest, valErr.Error())
		case errors.As(err, &payReq):
			return echo.NewHTTPError(http.StatusNotFound, "No priced plan covers this feature")
		case errors.As(err, &payFail):
			return echo.NewHTTPError(http.StatusPaymentRequired, payFail.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":     "Payment processed successfully",
		"transaction": txn,
	})
}

// GetTransaction handles GET /payments/:id
func (h *PaymentHandlers) GetTransaction(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := common.GetUserIDFromContext(ctx); !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	txn, err := h.billingService.GetTransaction(ctx, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if txn == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Transaction not found")
	}

	return c.JSON(http.StatusOK, txn)
}

// RefundTransaction handles POST /payments/:id/refund
func (h *PaymentHandlers) RefundTransaction(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := common.GetUserIDFromContext(ctx); !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	txn, err := h.billingService.RefundTransaction(ctx, c.Param("id"))
	if err != nil {
		var valErr *models.ValidationError
		var payFail *models.PaymentFailed
		switch {
		case errors.As(err, &valErr):
			return echo.NewHTTPError(http.StatusNotFound, "Transaction not found")
		case errors.As(err, &payFail):
			return echo.NewHTTPError(http.StatusConflict, payFail.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Refund processed successfully",
		"transaction": txn,
	})
}

package handlers

import (
	"errors"
	"net/http"

	"agentpay/internal/common"
	"agentpay/internal/models"
	"agentpay/internal/services"

	"github.com/labstack/echo/v4"
)

// SubscriptionHandlers handles HTTP requests for subscriptions
type SubscriptionHandlers struct {
	subscriptionService services.SubscriptionService
}

// NewSubscriptionHandlers creates a new subscription handlers instance
func NewSubscriptionHandlers(subscriptionService services.SubscriptionService) *SubscriptionHandlers {
	return &SubscriptionHandlers{subscriptionService: subscriptionService}
}

// Subscribe handles POST /subscriptions
func (h *SubscriptionHandlers) Subscribe(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req struct {
		PlanID   string            `json:"plan_id"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.PlanID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Plan ID is required")
	}

	subscription, err := h.subscriptionService.Create(ctx, userID, req.PlanID, req.Metadata)
	if err != nil {
		var cfgErr *models.ConfigurationError
		if errors.As(err, &cfgErr) {
			return echo.NewHTTPError(http.StatusBadRequest, cfgErr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":      "Subscription created successfully",
		"subscription": subscription,
	})
}

// GetSubscription handles GET /subscriptions
func (h *SubscriptionHandlers) GetSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	subscription, err := h.subscriptionService.GetUserSubscription(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if subscription == nil {
		return echo.NewHTTPError(http.StatusNotFound, "No active subscription")
	}
	return c.JSON(http.StatusOK, subscription)
}

// CancelSubscription handles DELETE /subscriptions
func (h *SubscriptionHandlers) CancelSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	cancelled, err := h.subscriptionService.Cancel(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !cancelled {
		return echo.NewHTTPError(http.StatusNotFound, "No active subscription")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Subscription cancelled successfully",
	})
}

// RenewSubscription handles POST /subscriptions/renew
func (h *SubscriptionHandlers) RenewSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	subscription, err := h.subscriptionService.Renew(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if subscription == nil {
		return echo.NewHTTPError(http.StatusNotFound, "No active subscription to renew")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":      "Subscription renewed successfully",
		"subscription": subscription,
	})
}

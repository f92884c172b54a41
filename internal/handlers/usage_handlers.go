package handlers

import (
	"errors"
	"net/http"

	"agentpay/internal/common"
	"agentpay/internal/models"
	"agentpay/internal/services"

	"github.com/labstack/echo/v4"
)

// UsageHandlers handles HTTP requests for usage queries and metered recording
type UsageHandlers struct {
	usageService    services.UsageService
	meteringService services.MeteringService
}

// NewUsageHandlers creates a new usage handlers instance
func NewUsageHandlers(usageService services.UsageService, meteringService services.MeteringService) *UsageHandlers {
	return &UsageHandlers{usageService: usageService, meteringService: meteringService}
}

// GetUsage handles GET /usage?start=&end=
func (h *UsageHandlers) GetUsage(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	start, err := common.ParseOptionalDate(c.QueryParam("start"), "start")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	end, err := common.ParseOptionalDate(c.QueryParam("end"), "end")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if start != nil && end != nil {
		if err := common.ValidateDateRange(*start, *end); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	records, err := h.usageService.GetUserUsage(ctx, userID, start, end)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	totalCost, err := h.usageService.GetTotalCost(ctx, userID, start, end)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"records":    records,
		"total_cost": totalCost,
	})
}

// GetUsageCount handles GET /usage/count?feature=
func (h *UsageHandlers) GetUsageCount(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	feature := c.QueryParam("feature")
	if feature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Feature is required")
	}

	count, err := h.usageService.GetUsageCount(ctx, userID, feature, nil, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"feature": feature,
		"count":   count,
	})
}

// CheckAccess handles GET /access?feature=
func (h *UsageHandlers) CheckAccess(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	feature := c.QueryParam("feature")
	allowed, err := h.meteringService.CheckAccess(ctx, userID, feature)
	if err != nil {
		var valErr *models.ValidationError
		if errors.As(err, &valErr) {
			return echo.NewHTTPError(http.StatusBadRequest, valErr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"feature": feature,
		"allowed": allowed,
	})
}

// RecordUsage handles POST /usage
func (h *UsageHandlers) RecordUsage(c echo.Context) error {
	ctx := c.Request().Context()

	userID, ok := common.GetUserIDFromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req struct {
		Feature string   `json:"feature"`
		Cost    *float64 `json:"cost"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	record, err := h.meteringService.RecordUsage(ctx, userID, req.Feature, req.Cost)
	if err != nil {
		var (
			valErr   *models.ValidationError
			limitErr *models.UsageLimitExceeded
		)
		switch {
		case errors.As(err, &valErr):
			return echo.NewHTTPError(http.StatusBadRequest, valErr.Error())
		case errors.As(err, &limitErr):
			return echo.NewHTTPError(http.StatusTooManyRequests, limitErr.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Usage recorded successfully",
		"record":  record,
	})
}

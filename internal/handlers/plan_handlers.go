package handlers

import (
	"errors"
	"net/http"

	"agentpay/internal/models"
	"agentpay/internal/services"

	"github.com/labstack/echo/v4"
)

// PlanHandlers handles HTTP requests for payment plans
type PlanHandlers struct {
	planService services.PlanService
}

// NewPlanHandlers creates a new plan handlers instance
func NewPlanHandlers(planService services.PlanService) *PlanHandlers {
	return &PlanHandlers{planService: planService}
}

// CreatePlan handles POST /plans
func (h *PlanHandlers) CreatePlan(c echo.Context) error {
	ctx := c.Request().Context()

	var plan models.PaymentPlan
	if err := c.Bind(&plan); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := h.planService.CreatePlan(ctx, &plan); err != nil {
		var valErr *models.ValidationError
		if errors.As(err, &valErr) {
			return echo.NewHTTPError(http.StatusBadRequest, valErr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Plan created successfully",
		"plan":    plan,
	})
}

// ListPlans handles GET /plans
func (h *PlanHandlers) ListPlans(c echo.Context) error {
	plans, err := h.planService.ListPlans(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"plans": plans,
	})
}

// GetPlan handles GET /plans/:id
func (h *PlanHandlers) GetPlan(c echo.Context) error {
	plan, err := h.planService.GetPlan(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if plan == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Plan not found")
	}
	return c.JSON(http.StatusOK, plan)
}

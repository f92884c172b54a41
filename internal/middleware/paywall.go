package middleware

import (
	"context"
	"errors"
	"net/http"

	"agentpay/internal/common"
	"agentpay/internal/models"
	"agentpay/internal/services"

	"github.com/labstack/echo/v4"
)

// PaywallMiddleware applies the feature gates to HTTP routes. It resolves the
// user from the request context and translates typed metering failures into
// HTTP statuses.
type PaywallMiddleware struct {
	gates *services.Gates
}

func NewPaywallMiddleware(gates *services.Gates) *PaywallMiddleware {
	return &PaywallMiddleware{gates: gates}
}

// RequirePaidFeature gates the route behind the engine's access decision and
// meters one usage per successful pass through the handler.
func (m *PaywallMiddleware) RequirePaidFeature(feature string, cost *float64) echo.MiddlewareFunc {
	gate := m.gates.PaidFeature(feature, cost)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := common.GetUserIDFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
			}
			gated := gate(func(ctx context.Context, uid string) error {
				return next(c)
			})
			return translateGateError(gated(c.Request().Context(), userID))
		}
	}
}

// RequireSubscription gates the route behind an active subscription to a
// specific plan.
func (m *PaywallMiddleware) RequireSubscription(planID string) echo.MiddlewareFunc {
	gate := m.gates.SubscriptionRequired(planID)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := common.GetUserIDFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
			}
			gated := gate(func(ctx context.Context, uid string) error {
				return next(c)
			})
			return translateGateError(gated(c.Request().Context(), userID))
		}
	}
}

// RequireUsageLimit gates the route behind a fixed invocation ceiling,
// independent of plans.
func (m *PaywallMiddleware) RequireUsageLimit(maxUses int, feature string) echo.MiddlewareFunc {
	gate := m.gates.UsageLimit(maxUses, feature)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, ok := common.GetUserIDFromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
			}
			gated := gate(func(ctx context.Context, uid string) error {
				return next(c)
			})
			return translateGateError(gated(c.Request().Context(), userID))
		}
	}
}

// translateGateError maps typed metering errors to HTTP errors and passes
// everything else through untouched.
func translateGateError(err error) error {
	if err == nil {
		return nil
	}
	var (
		limitErr *models.UsageLimitExceeded
		payErr   *models.PaymentRequired
		subErr   *models.SubscriptionExpired
		valErr   *models.ValidationError
	)
	switch {
	case errors.As(err, &limitErr):
		return echo.NewHTTPError(http.StatusTooManyRequests, limitErr.Error())
	case errors.As(err, &payErr):
		return echo.NewHTTPError(http.StatusPaymentRequired, payErr.Error())
	case errors.As(err, &subErr):
		return echo.NewHTTPError(http.StatusForbidden, subErr.Error())
	case errors.As(err, &valErr):
		return echo.NewHTTPError(http.StatusBadRequest, valErr.Error())
	default:
		return err
	}
}

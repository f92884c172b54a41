package handlers

import (
	"net/http"

	"agentpay/internal/storage"

	"github.com/labstack/echo/v4"
)

// HealthHandlers handles HTTP requests for health checks
type HealthHandlers struct {
	store storage.Backend
}

// NewHealthHandlers creates a new health handlers instance
func NewHealthHandlers(store storage.Backend) *HealthHandlers {
	return &HealthHandlers{store: store}
}

// Health handles GET /health
func (h *HealthHandlers) Health(c echo.Context) error {
	caps := h.store.Capabilities()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":                "ok",
		"supports_transactions": caps.SupportsTransactions,
		"persistent":            caps.Persistent,
	})
}

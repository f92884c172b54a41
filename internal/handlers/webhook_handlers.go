package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"agentpay/internal/services"
	"agentpay/internal/storage"

	"github.com/labstack/echo/v4"
)

// PaymentWebhookEvent is the payload delivered by the payment provider.
type PaymentWebhookEvent struct {
	ID            string `json:"id"`
	Event         string `json:"event"`
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	Created       int64  `json:"created"`
}

// WebhookHandlers handles HTTP requests for payment-provider webhooks
type WebhookHandlers struct {
	store               storage.Backend
	subscriptionService services.SubscriptionService
	webhookSecret       string
}

// NewWebhookHandlers creates a new webhook handlers instance
func NewWebhookHandlers(store storage.Backend, subscriptionService services.SubscriptionService, webhookSecret string) *WebhookHandlers {
	return &WebhookHandlers{
		store:               store,
		subscriptionService: subscriptionService,
		webhookSecret:       webhookSecret,
	}
}

// verifySignature checks the webhook body against its HMAC-SHA256 signature.
func (h *WebhookHandlers) verifySignature(signature string, body []byte) bool {
	hash := hmac.New(sha256.New, []byte(h.webhookSecret))
	hash.Write(body)
	expectedSignature := hex.EncodeToString(hash.Sum(nil))

	// Use constant time comparison to prevent timing attacks
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// PaymentWebhook handles POST /webhooks/payment
func (h *WebhookHandlers) PaymentWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
	}

	signature := c.Request().Header.Get("X-Webhook-Signature")
	if signature == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing webhook signature")
	}
	if !h.verifySignature(signature, body) {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid webhook signature")
	}

	var event PaymentWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to parse webhook data")
	}

	if err := h.processEvent(c, &event); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Webhook processed successfully",
	})
}

func (h *WebhookHandlers) processEvent(c echo.Context, event *PaymentWebhookEvent) error {
	ctx := c.Request().Context()

	switch event.Event {
	case "payment.completed":
		txn, err := h.store.GetTransaction(ctx, event.TransactionID)
		if err != nil {
			return err
		}
		if txn == nil {
			log.Printf("Webhook references unknown transaction %s", event.TransactionID)
			return nil
		}
		if err := txn.MarkCompleted(); err != nil {
			log.Printf("Transaction %s already settled: %v", txn.ID, err)
			return nil
		}
		return h.store.SaveTransaction(ctx, txn)
	case "payment.failed":
		txn, err := h.store.GetTransaction(ctx, event.TransactionID)
		if err != nil {
			return err
		}
		if txn == nil {
			log.Printf("Webhook references unknown transaction %s", event.TransactionID)
			return nil
		}
		if err := txn.MarkFailed(); err != nil {
			return err
		}
		return h.store.SaveTransaction(ctx, txn)
	case "subscription.renewed":
		if event.UserID == "" {
			return nil
		}
		_, err := h.subscriptionService.Renew(ctx, event.UserID)
		return err
	case "subscription.cancelled":
		if event.UserID == "" {
			return nil
		}
		_, err := h.subscriptionService.Cancel(ctx, event.UserID)
		return err
	default:
		log.Printf("Ignoring unhandled webhook event: %s", event.Event)
		return nil
	}
}

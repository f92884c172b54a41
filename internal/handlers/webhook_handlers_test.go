package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agentpay/internal/models"
	"agentpay/internal/services"
	"agentpay/internal/storage"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

const testWebhookSecret = "whsec_test"

type WebhookHandlersTestSuite struct {
	suite.Suite
	store    *storage.MemoryBackend
	handlers *WebhookHandlers
	echo     *echo.Echo
}

func (suite *WebhookHandlersTestSuite) SetupTest() {
	suite.store = storage.NewMemoryBackend()
	subscriptions := services.NewSubscriptionService(suite.store)
	suite.handlers = NewWebhookHandlers(suite.store, subscriptions, testWebhookSecret)
	suite.echo = echo.New()
}

func TestWebhookHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(WebhookHandlersTestSuite))
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (suite *WebhookHandlersTestSuite) deliver(body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	rec := httptest.NewRecorder()
	c := suite.echo.NewContext(req, rec)
	if err := suite.handlers.PaymentWebhook(c); err != nil {
		suite.echo.HTTPErrorHandler(err, c)
	}
	return rec
}

func (suite *WebhookHandlersTestSuite) TestMissingSignature() {
	rec := suite.deliver(`{"event":"payment.completed"}`, "")
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}

func (suite *WebhookHandlersTestSuite) TestInvalidSignature() {
	rec := suite.deliver(`{"event":"payment.completed"}`, "deadbeef")
	assert.Equal(suite.T(), http.StatusUnauthorized, rec.Code)
}

func (suite *WebhookHandlersTestSuite) TestPaymentCompleted() {
	txn := &models.PaymentTransaction{
		ID:        "txn_1",
		UserID:    "user-1",
		Amount:    5,
		Currency:  "USD",
		Status:    models.TransactionStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	assert.NoError(suite.T(), suite.store.SaveTransaction(context.Background(), txn))

	body := fmt.Sprintf(`{"id":"evt_1","event":"payment.completed","transaction_id":"%s"}`, txn.ID)
	rec := suite.deliver(body, sign(testWebhookSecret, []byte(body)))
	assert.Equal(suite.T(), http.StatusOK, rec.Code)

	updated, err := suite.store.GetTransaction(context.Background(), txn.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TransactionStatusCompleted, updated.Status)
}

func (suite *WebhookHandlersTestSuite) TestUnknownTransactionIsAccepted() {
	body := `{"id":"evt_1","event":"payment.completed","transaction_id":"txn_missing"}`
	rec := suite.deliver(body, sign(testWebhookSecret, []byte(body)))
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
}

func (suite *WebhookHandlersTestSuite) TestUnhandledEventIsAccepted() {
	body := `{"id":"evt_1","event":"invoice.created"}`
	rec := suite.deliver(body, sign(testWebhookSecret, []byte(body)))
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
}

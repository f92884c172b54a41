package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentpay/internal/models"
	"agentpay/internal/storage"
)

// StripeProvider charges cards through the Stripe REST API. Amounts are
// converted to the smallest currency unit as Stripe expects.
type StripeProvider struct {
	apiKey  string
	baseURL string
	store   storage.Backend
	http    *http.Client
}

type stripePaymentIntent struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type stripeError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewStripeProvider(apiKey string, store storage.Backend) *StripeProvider {
	return &StripeProvider{
		apiKey:  apiKey,
		baseURL: "https://api.stripe.com/v1",
		store:   store,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *StripeProvider) Name() string {
	return "stripe"
}

func (p *StripeProvider) ProcessPayment(ctx context.Context, userID string, amount float64, currency string, metadata map[string]string) (*models.PaymentTransaction, error) {
	if userID == "" {
		return nil, &models.ValidationError{Field: "user_id", Message: "user id cannot be empty"}
	}
	if amount < 0 {
		return nil, &models.ValidationError{Field: "amount", Message: "amount cannot be negative"}
	}

	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", int64(amount*100)))
	form.Set("currency", strings.ToLower(currency))
	form.Set("confirm", "true")
	form.Set("metadata[user_id]", userID)
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	body, err := p.makeRequest(ctx, http.MethodPost, "/payment_intents", form)
	if err != nil {
		return nil, &models.PaymentFailed{Reason: err.Error()}
	}

	var intent stripePaymentIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return nil, fmt.Errorf("failed to parse stripe response: %v", err)
	}

	txn := &models.PaymentTransaction{
		ID:            intent.ID,
		UserID:        userID,
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: "stripe",
		Status:        models.TransactionStatusPending,
		CreatedAt:     time.Now().UTC(),
		Metadata:      metadata,
	}
	if intent.Status == "succeeded" {
		if err := txn.MarkCompleted(); err != nil {
			return nil, err
		}
	}
	if err := p.store.SaveTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (p *StripeProvider) VerifyPayment(ctx context.Context, transactionID string) (bool, error) {
	body, err := p.makeRequest(ctx, http.MethodGet, "/payment_intents/"+transactionID, nil)
	if err != nil {
		return false, err
	}
	var intent stripePaymentIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return false, fmt.Errorf("failed to parse stripe response: %v", err)
	}
	return intent.Status == "succeeded", nil
}

func (p *StripeProvider) Refund(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	form := url.Values{}
	form.Set("payment_intent", transactionID)
	if _, err := p.makeRequest(ctx, http.MethodPost, "/refunds", form); err != nil {
		return nil, &models.PaymentFailed{TransactionID: transactionID, Reason: err.Error()}
	}

	txn, err := p.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, &models.PaymentFailed{TransactionID: transactionID, Reason: "transaction not found"}
	}
	if err := txn.MarkRefunded(); err != nil {
		return nil, err
	}
	if err := p.store.SaveTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (p *StripeProvider) makeRequest(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		var se stripeError
		if err := json.Unmarshal(body, &se); err == nil && se.Error.Message != "" {
			return nil, fmt.Errorf("stripe API error (%d): %s", resp.StatusCode, se.Error.Message)
		}
		return nil, fmt.Errorf("stripe API error: status %d", resp.StatusCode)
	}
	return body, nil
}

package providers

import (
	"context"
	"log"
	"time"

	"agentpay/internal/models"
	"agentpay/internal/storage"

	"github.com/google/uuid"
)

// MockProvider completes every charge immediately and persists transactions
// through the storage backend. For development and tests.
type MockProvider struct {
	store storage.Backend
}

func NewMockProvider(store storage.Backend) *MockProvider {
	return &MockProvider{store: store}
}

func (p *MockProvider) Name() string {
	return "mock"
}

func (p *MockProvider) ProcessPayment(ctx context.Context, userID string, amount float64, currency string, metadata map[string]string) (*models.PaymentTransaction, error) {
	if userID == "" {
		return nil, &models.ValidationError{Field: "user_id", Message: "user id cannot be empty"}
	}
	if amount < 0 {
		return nil, &models.ValidationError{Field: "amount", Message: "amount cannot be negative"}
	}

	txn := &models.PaymentTransaction{
		ID:            "txn_" + uuid.NewString(),
		UserID:        userID,
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: "mock",
		Status:        models.TransactionStatusPending,
		CreatedAt:     time.Now().UTC(),
		Metadata:      metadata,
	}
	if err := txn.MarkCompleted(); err != nil {
		return nil, err
	}
	if err := p.store.SaveTransaction(ctx, txn); err != nil {
		return nil, err
	}
	log.Printf("Processed mock payment %s for user %s: %.2f %s", txn.ID, userID, amount, currency)
	return txn, nil
}

func (p *MockProvider) VerifyPayment(ctx context.Context, transactionID string) (bool, error) {
	txn, err := p.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return false, err
	}
	return txn != nil && txn.IsCompleted(), nil
}

func (p *MockProvider) Refund(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
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
	log.Printf("Refunded mock payment %s", transactionID)
	return txn, nil
}

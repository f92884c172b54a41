package models

import (
	"time"
)

// Payment transaction statuses.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusRefunded  = "refunded"
)

// PaymentTransaction is a monetary settlement processed through an external
// payment provider. The metering engine never creates these; an outer
// orchestrator does.
type PaymentTransaction struct {
	ID            string            `json:"id" db:"id"`
	UserID        string            `json:"user_id" db:"user_id"`
	Amount        float64           `json:"amount" db:"amount"`
	Currency      string            `json:"currency" db:"currency"`
	PaymentMethod string            `json:"payment_method" db:"payment_method"`
	Status        string            `json:"status" db:"status"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at" db:"completed_at"`
	Metadata      map[string]string `json:"metadata" db:"metadata"`
}

func (t *PaymentTransaction) IsCompleted() bool {
	return t.Status == TransactionStatusCompleted
}

// MarkCompleted moves a pending transaction to completed.
func (t *PaymentTransaction) MarkCompleted() error {
	if t.Status != TransactionStatusPending {
		return &ValidationError{Field: "status", Message: "only pending transactions can be completed, got " + t.Status}
	}
	now := time.Now().UTC()
	t.Status = TransactionStatusCompleted
	t.CompletedAt = &now
	return nil
}

// MarkFailed moves a pending or completed transaction to failed.
func (t *PaymentTransaction) MarkFailed() error {
	if t.Status != TransactionStatusPending && t.Status != TransactionStatusCompleted {
		return &ValidationError{Field: "status", Message: "cannot fail a transaction in status " + t.Status}
	}
	t.Status = TransactionStatusFailed
	return nil
}

// MarkRefunded moves a completed transaction to refunded.
func (t *PaymentTransaction) MarkRefunded() error {
	if t.Status != TransactionStatusCompleted {
		return &ValidationError{Field: "status", Message: "only completed transactions can be refunded, got " + t.Status}
	}
	t.Status = TransactionStatusRefunded
	return nil
}

// Validate checks the transaction fields before persisting.
func (t *PaymentTransaction) Validate() error {
	if t.ID == "" {
		return &ValidationError{Field: "id", Message: "transaction id cannot be empty"}
	}
	if t.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "user id cannot be empty"}
	}
	if t.Amount < 0 {
		return &ValidationError{Field: "amount", Message: "amount cannot be negative"}
	}
	if t.Currency == "" {
		return &ValidationError{Field: "currency", Message: "currency cannot be empty"}
	}
	switch t.Status {
	case TransactionStatusPending, TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusRefunded:
	default:
		return &ValidationError{Field: "status", Message: "invalid transaction status: " + t.Status}
	}
	if t.CompletedAt != nil && t.CompletedAt.Before(t.CreatedAt) {
		return &ValidationError{Field: "completed_at", Message: "completed date cannot be before created date"}
	}
	return nil
}

package providers

import (
	"context"

	"agentpay/internal/models"
)

// PaymentProvider settles money for gated usage. The metering engine never
// calls this; an outer orchestrator does.
type PaymentProvider interface {
	Name() string
	ProcessPayment(ctx context.Context, userID string, amount float64, currency string, metadata map[string]string) (*models.PaymentTransaction, error)
	VerifyPayment(ctx context.Context, transactionID string) (bool, error)
	Refund(ctx context.Context, transactionID string) (*models.PaymentTransaction, error)
}

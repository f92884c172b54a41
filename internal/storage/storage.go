package storage

import (
	"context"
	"time"

	"agentpay/internal/models"

	"github.com/google/uuid"
)

// Capabilities describes what a backend can do. It is fixed at construction
// and queried once by consumers; backends are never probed ad hoc.
type Capabilities struct {
	SupportsTransactions bool
	Persistent           bool
}

// Backend is the persistence capability consumed by the metering engine and
// the lifecycle manager. Lookup methods return (nil, nil) when the entity does
// not exist; errors are reserved for backend failures.
type Backend interface {
	SavePlan(ctx context.Context, plan *models.PaymentPlan) error
	GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error)
	ListPlans(ctx context.Context) ([]*models.PaymentPlan, error)

	SaveSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	// GetUserSubscription returns the most recently saved subscription row for
	// the user, regardless of status. Activity checks happen above this layer.
	GetUserSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*models.Subscription, error)

	SaveUsageRecord(ctx context.Context, record *models.UsageRecord) error
	// GetUserUsage returns records for the user whose timestamp falls within
	// the optional inclusive bounds. No ordering is guaranteed.
	GetUserUsage(ctx context.Context, userID string, start, end *time.Time) ([]*models.UsageRecord, error)

	SaveTransaction(ctx context.Context, txn *models.PaymentTransaction) error
	GetTransaction(ctx context.Context, id string) (*models.PaymentTransaction, error)

	Capabilities() Capabilities
}

// Tx is a transactional view of a backend. Writes become visible to other
// readers only on Commit.
type Tx interface {
	Backend
	// LockUsage blocks until no other transaction holds the usage lock for
	// the same (userID, feature) pair. The lock lasts until Commit or
	// Rollback. Callers take it before re-reading counts so concurrent
	// writers for the pair serialize instead of racing past each other's
	// uncommitted writes.
	LockUsage(ctx context.Context, userID, feature string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxBeginner is implemented by backends whose Capabilities report transaction
// support. Its absence must select the engine's lock strategy, never fail.
type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// InRange reports whether ts falls within the optional inclusive bounds.
func InRange(ts time.Time, start, end *time.Time) bool {
	if start != nil && ts.Before(*start) {
		return false
	}
	if end != nil && ts.After(*end) {
		return false
	}
	return true
}

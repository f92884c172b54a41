package storage

import (
	"context"
	"sync"
	"time"

	"agentpay/internal/models"

	"github.com/google/uuid"
)

// MemoryBackend keeps everything in process memory. It reports no transaction
// support, so the engine serializes writes behind its own mutex. Intended for
// development and tests.
type MemoryBackend struct {
	mu            sync.RWMutex
	plans         map[string]*models.PaymentPlan
	subscriptions map[uuid.UUID]*models.Subscription
	// userSubs tracks the most recently saved subscription per user.
	userSubs     map[string]uuid.UUID
	usageRecords []*models.UsageRecord
	transactions map[string]*models.PaymentTransaction
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		plans:         make(map[string]*models.PaymentPlan),
		subscriptions: make(map[uuid.UUID]*models.Subscription),
		userSubs:      make(map[string]uuid.UUID),
		transactions:  make(map[string]*models.PaymentTransaction),
	}
}

func (m *MemoryBackend) Capabilities() Capabilities {
	return Capabilities{SupportsTransactions: false, Persistent: false}
}

// The clone helpers copy slice and map fields too, so callers mutating a
// returned value never reach the stored row.
func clonePlan(p *models.PaymentPlan) *models.PaymentPlan {
	cp := *p
	if p.Features != nil {
		cp.Features = append([]string(nil), p.Features...)
	}
	return &cp
}

func cloneSubscription(s *models.Subscription) *models.Subscription {
	cp := *s
	cp.Metadata = cloneMetadata(s.Metadata)
	return &cp
}

func cloneUsageRecord(r *models.UsageRecord) *models.UsageRecord {
	cp := *r
	cp.Metadata = cloneMetadata(r.Metadata)
	return &cp
}

func cloneTransaction(t *models.PaymentTransaction) *models.PaymentTransaction {
	cp := *t
	cp.Metadata = cloneMetadata(t.Metadata)
	return &cp
}

func cloneMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func (m *MemoryBackend) SavePlan(ctx context.Context, plan *models.PaymentPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = clonePlan(plan)
	return nil
}

func (m *MemoryBackend) GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plan, ok := m.plans[planID]
	if !ok {
		return nil, nil
	}
	return clonePlan(plan), nil
}

func (m *MemoryBackend) ListPlans(ctx context.Context) ([]*models.PaymentPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plans := make([]*models.PaymentPlan, 0, len(m.plans))
	for _, plan := range m.plans {
		plans = append(plans, clonePlan(plan))
	}
	return plans, nil
}

func (m *MemoryBackend) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := cloneSubscription(sub)
	cp.UpdatedAt = time.Now().UTC()
	m.subscriptions[sub.ID] = cp
	m.userSubs[sub.UserID] = sub.ID
	return nil
}

func (m *MemoryBackend) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, nil
	}
	return cloneSubscription(sub), nil
}

func (m *MemoryBackend) GetUserSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.userSubs[userID]
	if !ok {
		return nil, nil
	}
	sub, ok := m.subscriptions[id]
	if !ok {
		return nil, nil
	}
	return cloneSubscription(sub), nil
}

func (m *MemoryBackend) ListSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subs := make([]*models.Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, cloneSubscription(sub))
	}
	return subs, nil
}

func (m *MemoryBackend) SaveUsageRecord(ctx context.Context, record *models.UsageRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usageRecords = append(m.usageRecords, cloneUsageRecord(record))
	return nil
}

func (m *MemoryBackend) GetUserUsage(ctx context.Context, userID string, start, end *time.Time) ([]*models.UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var records []*models.UsageRecord
	for _, record := range m.usageRecords {
		if record.UserID != userID {
			continue
		}
		if !InRange(record.Timestamp, start, end) {
			continue
		}
		records = append(records, cloneUsageRecord(record))
	}
	return records, nil
}

func (m *MemoryBackend) SaveTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[txn.ID] = cloneTransaction(txn)
	return nil
}

func (m *MemoryBackend) GetTransaction(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txn, ok := m.transactions[id]
	if !ok {
		return nil, nil
	}
	return cloneTransaction(txn), nil
}

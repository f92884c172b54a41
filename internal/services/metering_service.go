package services

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"agentpay/internal/models"
	"agentpay/internal/storage"
)

// MeteringService is the access-control and metering engine. CheckAccess is a
// lock-free advisory decision; RecordUsage is the authoritative write path
// that re-checks quotas and appends to the ledger inside one critical section.
type MeteringService interface {
	CheckAccess(ctx context.Context, userID, feature string) (bool, error)
	RecordUsage(ctx context.Context, userID, feature string, cost *float64) (*models.UsageRecord, error)
	// DenialError derives the typed error explaining why access to the feature
	// is denied: UsageLimitExceeded when a governing quota is exhausted,
	// PaymentRequired otherwise.
	DenialError(ctx context.Context, userID, feature string, requiredAmount *float64) error
}

type meteringService struct {
	store         storage.Backend
	subscriptions SubscriptionService
	defaultPlanID string

	// caps is captured once at construction; backends are never probed per
	// call.
	caps storage.Capabilities
	// mu serializes RecordUsage when the backend has no transaction support.
	// It exists from construction, never lazily.
	mu sync.Mutex
}

// NewMeteringService creates a new MeteringService instance. defaultPlanID may
// be empty; when set it names a pay-per-use plan granting fallback access.
func NewMeteringService(store storage.Backend, subscriptions SubscriptionService, defaultPlanID string) MeteringService {
	return &meteringService{
		store:         store,
		subscriptions: subscriptions,
		defaultPlanID: defaultPlanID,
		caps:          store.Capabilities(),
	}
}

// CheckAccess decides whether the user may use the feature right now. It takes
// no lock and writes nothing; under concurrency it may race benignly with
// writers and is never authoritative for enforcement.
//
// Decision order: subscription access, then freemium plans listing the
// feature (lowest plan id wins), then the configured default pay-per-use plan.
func (m *meteringService) CheckAccess(ctx context.Context, userID, feature string) (bool, error) {
	if err := validateMeteringInput(userID, feature); err != nil {
		return false, err
	}

	ok, err := m.subscriptions.CheckAccess(ctx, userID, feature)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	plans, err := m.freemiumPlans(ctx, m.store, feature)
	if err != nil {
		return false, err
	}
	if len(plans) > 0 {
		plan := plans[0]
		count, err := countUsage(ctx, m.store, userID, feature, nil, nil)
		if err != nil {
			return false, err
		}
		return count < plan.FreeRequests, nil
	}

	if m.defaultPlanID != "" {
		plan, err := m.store.GetPlan(ctx, m.defaultPlanID)
		if err != nil {
			return false, err
		}
		if plan != nil && plan.IsPayPerUse() && plan.HasFeature(feature) {
			return true, nil
		}
	}
	return false, nil
}

// RecordUsage validates inputs, then runs the quota re-check and the ledger
// append as one atomic unit. With a transactional backend the unit is a
// database transaction; otherwise every call serializes behind the engine
// mutex. Both strategies give the same guarantee: at most limit successful
// writes per (user, feature) under a quota-bearing plan.
func (m *meteringService) RecordUsage(ctx context.Context, userID, feature string, cost *float64) (*models.UsageRecord, error) {
	if err := validateMeteringInput(userID, feature); err != nil {
		return nil, err
	}
	if cost != nil && *cost < 0 {
		return nil, &models.ValidationError{Field: "cost", Message: "cost cannot be negative"}
	}

	if m.caps.SupportsTransactions {
		if tb, ok := m.store.(storage.TxBeginner); ok {
			return m.recordUsageTx(ctx, tb, userID, feature, cost)
		}
	}
	return m.recordUsageLocked(ctx, userID, feature, cost)
}

func (m *meteringService) recordUsageTx(ctx context.Context, tb storage.TxBeginner, userID, feature string, cost *float64) (*models.UsageRecord, error) {
	tx, err := tb.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	// The quota re-check counts rows it does not lock. Serialize writers for
	// this (user, feature) pair so the count cannot miss another
	// transaction's uncommitted append.
	if err := tx.LockUsage(ctx, userID, feature); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Printf("Failed to rollback transaction: %v", rbErr)
		}
		return nil, err
	}
	record, err := m.recordUsageIn(ctx, tx, userID, feature, cost)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			log.Printf("Failed to rollback transaction: %v", rbErr)
		}
		return nil, err
	}
	// A failed commit leaves the transaction closed; no rollback attempt.
	if err := tx.Commit(ctx); err != nil {
		return nil, &models.StorageError{Op: "commit", Err: err}
	}
	return record, nil
}

func (m *meteringService) recordUsageLocked(ctx context.Context, userID, feature string, cost *float64) (*models.UsageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordUsageIn(ctx, m.store, userID, feature, cost)
}

// recordUsageIn is the critical section. It re-reads current counts through b
// (a transaction or the plain backend under the engine mutex) instead of
// trusting any earlier CheckAccess answer, closing the race window between
// decision and write.
func (m *meteringService) recordUsageIn(ctx context.Context, b storage.Backend, userID, feature string, cost *float64) (*models.UsageRecord, error) {
	freemium, err := m.freemiumPlans(ctx, b, feature)
	if err != nil {
		return nil, err
	}
	for _, plan := range freemium {
		count, err := countUsage(ctx, b, userID, feature, nil, nil)
		if err != nil {
			return nil, err
		}
		if count >= plan.FreeRequests {
			return nil, &models.UsageLimitExceeded{Feature: feature, CurrentUsage: count, Limit: plan.FreeRequests}
		}
	}

	now := time.Now().UTC()
	sub, err := b.GetUserSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	var subPlan *models.PaymentPlan
	if sub != nil && sub.IsActive(now) {
		subPlan, err = b.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return nil, err
		}
		if subPlan != nil && subPlan.RequestsPerPeriod != nil && subPlan.HasFeature(feature) {
			if sub.UsageCount >= *subPlan.RequestsPerPeriod {
				return nil, &models.UsageLimitExceeded{Feature: feature, CurrentUsage: sub.UsageCount, Limit: *subPlan.RequestsPerPeriod}
			}
		}
	}

	record, err := buildUsageRecord(userID, feature, cost, nil)
	if err != nil {
		return nil, err
	}
	if err := b.SaveUsageRecord(ctx, record); err != nil {
		return nil, err
	}
	log.Printf("Recorded usage for user %s, feature %s, cost: %.2f", userID, feature, record.CostOrZero())

	// The subscription counter moves together with the ledger append; both
	// become visible at once (commit, or mutex release).
	if sub != nil && sub.IsActive(now) && subPlan != nil && subPlan.HasFeature(feature) {
		sub.IncrementUsage()
		if err := b.SaveSubscription(ctx, sub); err != nil {
			return nil, err
		}
	}
	return record, nil
}

// DenialError re-derives the specific cause of a deny decision for callers
// that need a typed failure rather than a bare false.
func (m *meteringService) DenialError(ctx context.Context, userID, feature string, requiredAmount *float64) error {
	freemium, err := m.freemiumPlans(ctx, m.store, feature)
	if err != nil {
		return err
	}
	for _, plan := range freemium {
		count, err := countUsage(ctx, m.store, userID, feature, nil, nil)
		if err != nil {
			return err
		}
		if count >= plan.FreeRequests {
			return &models.UsageLimitExceeded{Feature: feature, CurrentUsage: count, Limit: plan.FreeRequests}
		}
	}

	sub, err := m.subscriptions.GetUserSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if sub != nil {
		plan, err := m.store.GetPlan(ctx, sub.PlanID)
		if err != nil {
			return err
		}
		if plan != nil && plan.RequestsPerPeriod != nil && plan.HasFeature(feature) && sub.UsageCount >= *plan.RequestsPerPeriod {
			return &models.UsageLimitExceeded{Feature: feature, CurrentUsage: sub.UsageCount, Limit: *plan.RequestsPerPeriod}
		}
	}
	return &models.PaymentRequired{Feature: feature, RequiredAmount: requiredAmount}
}

// freemiumPlans returns the freemium plans listing the feature, sorted by plan
// id ascending. The lowest id wins when several freemium plans cover the same
// feature, which keeps the decision deterministic across backends.
func (m *meteringService) freemiumPlans(ctx context.Context, b storage.Backend, feature string) ([]*models.PaymentPlan, error) {
	plans, err := b.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	var matched []*models.PaymentPlan
	for _, plan := range plans {
		if plan.IsFreemium() && plan.HasFeature(feature) {
			matched = append(matched, plan)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

func validateMeteringInput(userID, feature string) error {
	if userID == "" {
		return &models.ValidationError{Field: "user_id", Message: "user_id cannot be empty"}
	}
	if feature == "" {
		return &models.ValidationError{Field: "feature", Message: "feature cannot be empty"}
	}
	return nil
}

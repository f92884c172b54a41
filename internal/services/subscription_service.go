package services

import (
	"context"
	"log"
	"time"

	"agentpay/internal/models"
	"agentpay/internal/storage"

	"github.com/google/uuid"
)

// SubscriptionService owns the per-user subscription state machine. It is the
// sole writer of status, usage count and period fields outside the engine's
// critical section.
type SubscriptionService interface {
	Create(ctx context.Context, userID, planID string, metadata map[string]string) (*models.Subscription, error)
	GetUserSubscription(ctx context.Context, userID string) (*models.Subscription, error)
	Cancel(ctx context.Context, userID string) (bool, error)
	Renew(ctx context.Context, userID string) (*models.Subscription, error)
	CheckAccess(ctx context.Context, userID, feature string) (bool, error)
}

type subscriptionService struct {
	store storage.Backend
}

// NewSubscriptionService creates a new SubscriptionService instance
func NewSubscriptionService(store storage.Backend) SubscriptionService {
	return &subscriptionService{store: store}
}

// Create subscribes a user to a plan. Any pre-existing subscription row for
// the user is cancelled first so at most one row is logically current.
func (s *subscriptionService) Create(ctx context.Context, userID, planID string, metadata map[string]string) (*models.Subscription, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, &models.ConfigurationError{Message: "payment plan '" + planID + "' not found for user '" + userID + "'"}
	}

	existing, err := s.store.GetUserSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == models.SubscriptionStatusActive {
		existing.Status = models.SubscriptionStatusCancelled
		if err := s.store.SaveSubscription(ctx, existing); err != nil {
			return nil, err
		}
		log.Printf("Cancelled existing subscription for user %s", userID)
	}

	now := time.Now().UTC()
	sub := &models.Subscription{
		ID:                 uuid.New(),
		UserID:             userID,
		PlanID:             planID,
		Status:             models.SubscriptionStatusActive,
		StartDate:          now,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   periodEnd(plan, now),
		Metadata:           metadata,
	}
	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	log.Printf("Created subscription %s for user %s to plan %s", sub.ID, userID, planID)
	return sub, nil
}

// GetUserSubscription returns the user's subscription only if it passes the
// activity check; inactive rows read as absent but stay stored.
func (s *subscriptionService) GetUserSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.store.GetUserSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil || !sub.IsActive(time.Now().UTC()) {
		return nil, nil
	}
	return sub, nil
}

// Cancel marks the active subscription cancelled. Returns false when none is
// active.
func (s *subscriptionService) Cancel(ctx context.Context, userID string) (bool, error) {
	sub, err := s.GetUserSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		log.Printf("No active subscription found for user %s", userID)
		return false, nil
	}
	if err := sub.SetStatus(models.SubscriptionStatusCancelled); err != nil {
		return false, err
	}
	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		return false, err
	}
	log.Printf("Cancelled subscription for user %s", userID)
	return true, nil
}

// Renew recomputes the billing period from now and resets the usage counter.
// Returns nil when no active subscription exists or its plan is gone.
func (s *subscriptionService) Renew(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.GetUserSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		log.Printf("No active subscription found for user %s", userID)
		return nil, nil
	}
	plan, err := s.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		log.Printf("Payment plan %s not found for subscription renewal", sub.PlanID)
		return nil, nil
	}

	now := time.Now().UTC()
	sub.CurrentPeriodStart = now
	sub.CurrentPeriodEnd = periodEnd(plan, now)
	sub.UsageCount = 0
	if err := sub.SetStatus(models.SubscriptionStatusActive); err != nil {
		return nil, err
	}
	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	log.Printf("Renewed subscription for user %s", userID)
	return sub, nil
}

// CheckAccess reports whether the user's subscription grants the feature:
// active row, feature in the plan, period not elapsed, and when the plan sets
// RequestsPerPeriod, usage below it. Plans without a quota are unbounded.
func (s *subscriptionService) CheckAccess(ctx context.Context, userID, feature string) (bool, error) {
	sub, err := s.GetUserSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}
	plan, err := s.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return false, err
	}
	if plan == nil {
		log.Printf("Payment plan %s not found for access check", sub.PlanID)
		return false, nil
	}
	if !plan.HasFeature(feature) {
		return false, nil
	}
	if plan.RequestsPerPeriod != nil && sub.UsageCount >= *plan.RequestsPerPeriod {
		return false, nil
	}
	return true, nil
}

// periodEnd computes the period end for a plan, or nil for plans without a
// billing period.
func periodEnd(plan *models.PaymentPlan, now time.Time) *time.Time {
	if plan.BillingPeriod == "" {
		return nil
	}
	end := now.Add(plan.BillingPeriod.Duration())
	return &end
}

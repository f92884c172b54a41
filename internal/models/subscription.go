package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses. Expiry is derived at read time from the current
// period end, but a sweeper may also persist it explicitly.
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

// allowedStatusTransitions restricts how a subscription row may move between
// statuses. Cancelled and expired rows can be reactivated by a renewal.
var allowedStatusTransitions = map[string][]string{
	SubscriptionStatusActive:    {SubscriptionStatusCancelled, SubscriptionStatusExpired},
	SubscriptionStatusCancelled: {SubscriptionStatusActive},
	SubscriptionStatusExpired:   {SubscriptionStatusActive},
}

// Subscription binds a user to a payment plan for a billing period. At most
// one row per user is logically current; creating a new subscription cancels
// the prior one first.
type Subscription struct {
	ID                 uuid.UUID         `json:"id" db:"id"`
	UserID             string            `json:"user_id" db:"user_id"`
	PlanID             string            `json:"plan_id" db:"plan_id"`
	Status             string            `json:"status" db:"status"`
	StartDate          time.Time         `json:"start_date" db:"start_date"`
	CurrentPeriodStart time.Time         `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd   *time.Time        `json:"current_period_end" db:"current_period_end"`
	UsageCount         int               `json:"usage_count" db:"usage_count"`
	Metadata           map[string]string `json:"metadata" db:"metadata"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the subscription grants access at the given time.
// A stored "active" row with an elapsed period end reads as inactive.
func (s *Subscription) IsActive(now time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	if s.CurrentPeriodEnd != nil && now.After(*s.CurrentPeriodEnd) {
		return false
	}
	return true
}

// SetStatus changes the status, enforcing the allowed transitions. Setting the
// current status again is a no-op.
func (s *Subscription) SetStatus(status string) error {
	if status == s.Status {
		return nil
	}
	for _, allowed := range allowedStatusTransitions[s.Status] {
		if status == allowed {
			s.Status = status
			return nil
		}
	}
	return &ValidationError{Field: "status", Message: "cannot change subscription status from " + s.Status + " to " + status}
}

// IncrementUsage bumps the per-period usage counter.
func (s *Subscription) IncrementUsage() {
	s.UsageCount++
}

// Validate checks the subscription fields before persisting.
func (s *Subscription) Validate() error {
	if s.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "user id cannot be empty"}
	}
	if s.PlanID == "" {
		return &ValidationError{Field: "plan_id", Message: "plan id cannot be empty"}
	}
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusCancelled, SubscriptionStatusExpired:
	default:
		return &ValidationError{Field: "status", Message: "invalid subscription status: " + s.Status}
	}
	if s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Before(s.CurrentPeriodStart) {
		return &ValidationError{Field: "current_period_end", Message: "period end cannot be before period start"}
	}
	if s.UsageCount < 0 {
		return &ValidationError{Field: "usage_count", Message: "usage count cannot be negative"}
	}
	return nil
}

package jobs

import (
	"context"
	"log"
	"time"

	"agentpay/internal/models"
	"agentpay/internal/storage"
)

// SubscriptionSweeper persists the expired status for active subscription
// rows whose billing period has elapsed. Reads already treat such rows as
// inactive; the sweep only makes the stored state match.
type SubscriptionSweeper struct {
	store storage.Backend
}

// NewSubscriptionSweeper creates a new SubscriptionSweeper instance
func NewSubscriptionSweeper(store storage.Backend) *SubscriptionSweeper {
	return &SubscriptionSweeper{store: store}
}

// SweepResult summarizes a single sweep run.
type SweepResult struct {
	Scanned int
	Expired int
	Errors  int
}

// Sweep walks all subscriptions and expires the elapsed ones.
func (s *SubscriptionSweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	subs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	result := &SweepResult{Scanned: len(subs)}
	for _, sub := range subs {
		if sub.Status != models.SubscriptionStatusActive {
			continue
		}
		if sub.CurrentPeriodEnd == nil || now.Before(*sub.CurrentPeriodEnd) {
			continue
		}
		if err := sub.SetStatus(models.SubscriptionStatusExpired); err != nil {
			log.Printf("Failed to expire subscription %s: %v", sub.ID, err)
			result.Errors++
			continue
		}
		if err := s.store.SaveSubscription(ctx, sub); err != nil {
			log.Printf("Failed to save expired subscription %s: %v", sub.ID, err)
			result.Errors++
			continue
		}
		result.Expired++
	}

	if result.Expired > 0 {
		log.Printf("Subscription sweep expired %d of %d subscriptions", result.Expired, result.Scanned)
	}
	return result, nil
}

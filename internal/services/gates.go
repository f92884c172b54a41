package services

import (
	"context"
	"log"

	"agentpay/internal/models"
)

// GatedFunc is arbitrary user logic guarded by a feature gate. The gates are
// composable: a gate takes a GatedFunc and returns a GatedFunc.
type GatedFunc func(ctx context.Context, userID string) error

// Gates are the cross-cutting policy application points wrapped around user
// logic. They consult the metering engine before invoking the wrapped
// function and raise typed failures on deny.
type Gates struct {
	metering      MeteringService
	subscriptions SubscriptionService
	usage         UsageService
}

// NewGates creates a new Gates instance
func NewGates(metering MeteringService, subscriptions SubscriptionService, usage UsageService) *Gates {
	return &Gates{metering: metering, subscriptions: subscriptions, usage: usage}
}

// PaidFeature gates fn behind the engine's access decision. On deny it
// returns the specific cause (UsageLimitExceeded or PaymentRequired). On
// allow it invokes fn first and records usage afterwards; an error from fn
// still propagates after usage is recorded. Charging for failed invocations
// is deliberate and matches the billing contract for metered calls.
func (g *Gates) PaidFeature(feature string, cost *float64) func(GatedFunc) GatedFunc {
	return func(fn GatedFunc) GatedFunc {
		return func(ctx context.Context, userID string) error {
			allowed, err := g.metering.CheckAccess(ctx, userID, feature)
			if err != nil {
				return err
			}
			if !allowed {
				return g.metering.DenialError(ctx, userID, feature, cost)
			}

			fnErr := fn(ctx, userID)
			if _, recErr := g.metering.RecordUsage(ctx, userID, feature, cost); recErr != nil {
				if fnErr != nil {
					log.Printf("Failed to record usage for user %s, feature %s: %v", userID, feature, recErr)
					return fnErr
				}
				return recErr
			}
			return fnErr
		}
	}
}

// SubscriptionRequired gates fn behind an active subscription to a specific
// plan. Any other state, including a subscription to a different plan, fails
// with SubscriptionExpired.
func (g *Gates) SubscriptionRequired(planID string) func(GatedFunc) GatedFunc {
	return func(fn GatedFunc) GatedFunc {
		return func(ctx context.Context, userID string) error {
			sub, err := g.subscriptions.GetUserSubscription(ctx, userID)
			if err != nil {
				return err
			}
			if sub == nil || sub.PlanID != planID {
				return &models.SubscriptionExpired{PlanID: planID}
			}
			return fn(ctx, userID)
		}
	}
}

// UsageLimit gates fn behind a fixed invocation ceiling, independent of any
// plan. Usage is recorded before fn runs, so an invocation counts even when
// fn fails.
func (g *Gates) UsageLimit(maxUses int, feature string) func(GatedFunc) GatedFunc {
	return func(fn GatedFunc) GatedFunc {
		return func(ctx context.Context, userID string) error {
			count, err := g.usage.GetUsageCount(ctx, userID, feature, nil, nil)
			if err != nil {
				return err
			}
			if count >= maxUses {
				return &models.UsageLimitExceeded{Feature: feature, CurrentUsage: count, Limit: maxUses}
			}
			if _, err := g.metering.RecordUsage(ctx, userID, feature, nil); err != nil {
				return err
			}
			return fn(ctx, userID)
		}
	}
}

package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSubscriptionIsActive(t *testing.T) {
	now := time.Now().UTC()
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	sub := &Subscription{Status: SubscriptionStatusActive, CurrentPeriodEnd: &future}
	assert.True(t, sub.IsActive(now))

	sub.CurrentPeriodEnd = &past
	assert.False(t, sub.IsActive(now), "elapsed period reads as inactive even while stored active")

	sub.CurrentPeriodEnd = nil
	assert.True(t, sub.IsActive(now), "no period end means no expiry")

	sub.Status = SubscriptionStatusCancelled
	assert.False(t, sub.IsActive(now))
}

func TestSubscriptionSetStatus(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		wantErr bool
	}{
		{"active to cancelled", SubscriptionStatusActive, SubscriptionStatusCancelled, false},
		{"active to expired", SubscriptionStatusActive, SubscriptionStatusExpired, false},
		{"cancelled to active", SubscriptionStatusCancelled, SubscriptionStatusActive, false},
		{"expired to active", SubscriptionStatusExpired, SubscriptionStatusActive, false},
		{"cancelled to expired", SubscriptionStatusCancelled, SubscriptionStatusExpired, true},
		{"expired to cancelled", SubscriptionStatusExpired, SubscriptionStatusCancelled, true},
		{"same status is a no-op", SubscriptionStatusActive, SubscriptionStatusActive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &Subscription{Status: tt.from}
			err := sub.SetStatus(tt.to)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.from, sub.Status)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, sub.Status)
			}
		})
	}
}

func TestSubscriptionValidate(t *testing.T) {
	now := time.Now().UTC()
	valid := func() *Subscription {
		return &Subscription{
			ID:                 uuid.New(),
			UserID:             "user-1",
			PlanID:             "pro",
			Status:             SubscriptionStatusActive,
			StartDate:          now,
			CurrentPeriodStart: now,
		}
	}

	assert.NoError(t, valid().Validate())

	sub := valid()
	sub.UserID = ""
	assert.Error(t, sub.Validate())

	sub = valid()
	sub.Status = "paused"
	assert.Error(t, sub.Validate())

	sub = valid()
	before := now.Add(-time.Hour)
	sub.CurrentPeriodEnd = &before
	assert.Error(t, sub.Validate())

	sub = valid()
	sub.UsageCount = -1
	assert.Error(t, sub.Validate())
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one immutable feature invocation. The ledger is append-only;
// records are never mutated or destroyed once written.
type UsageRecord struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	UserID    string            `json:"user_id" db:"user_id"`
	Feature   string            `json:"feature" db:"feature"`
	Timestamp time.Time         `json:"timestamp" db:"timestamp"`
	Cost      *float64          `json:"cost" db:"cost"`
	Currency  string            `json:"currency" db:"currency"`
	Metadata  map[string]string `json:"metadata" db:"metadata"`
}

// CostOrZero returns the cost, treating an absent cost as zero.
func (r *UsageRecord) CostOrZero() float64 {
	if r.Cost == nil {
		return 0
	}
	return *r.Cost
}

// Validate checks the record fields before persisting.
func (r *UsageRecord) Validate() error {
	if r.UserID == "" {
		return &ValidationError{Field: "user_id", Message: "user id cannot be empty"}
	}
	if r.Feature == "" {
		return &ValidationError{Field: "feature", Message: "feature cannot be empty"}
	}
	if r.Cost != nil && *r.Cost < 0 {
		return &ValidationError{Field: "cost", Message: "cost cannot be negative"}
	}
	return nil
}

package models

import "fmt"

// ValidationError indicates malformed input: empty identifiers, negative
// amounts, invalid enum values. Never retried automatically.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ConfigurationError indicates a reference to a plan that does not exist.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// UsageLimitExceeded indicates the quota for a feature is exhausted. Expected
// and recoverable by the caller, e.g. by prompting for an upgrade.
type UsageLimitExceeded struct {
	Feature      string
	CurrentUsage int
	Limit        int
}

func (e *UsageLimitExceeded) Error() string {
	return fmt.Sprintf("usage limit exceeded for feature %s (%d/%d)", e.Feature, e.CurrentUsage, e.Limit)
}

// SubscriptionExpired indicates a feature requires an active subscription to a
// specific plan.
type SubscriptionExpired struct {
	PlanID string
}

func (e *SubscriptionExpired) Error() string {
	return fmt.Sprintf("subscription to plan %s required", e.PlanID)
}

// PaymentRequired indicates no plan grants access to the feature.
type PaymentRequired struct {
	Feature        string
	RequiredAmount *float64
}

func (e *PaymentRequired) Error() string {
	if e.RequiredAmount != nil {
		return fmt.Sprintf("payment required for feature %s (%.2f)", e.Feature, *e.RequiredAmount)
	}
	return fmt.Sprintf("payment required for feature %s", e.Feature)
}

// PaymentFailed indicates the payment provider rejected or failed a charge.
type PaymentFailed struct {
	TransactionID string
	Reason        string
}

func (e *PaymentFailed) Error() string {
	return fmt.Sprintf("payment failed for transaction %s: %s", e.TransactionID, e.Reason)
}

// StorageError wraps a failure from the persistence backend.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

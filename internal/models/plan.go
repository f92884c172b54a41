package models

import (
	"time"
)

// PaymentType identifies the billing model of a plan.
type PaymentType string

const (
	PaymentTypePayPerUse    PaymentType = "pay_per_use"
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypeFreemium     PaymentType = "freemium"
)

// BillingPeriod is the interval after which a subscription's quota and window
// reset. An empty value means the plan has no recurring period.
type BillingPeriod string

const (
	BillingPeriodDaily   BillingPeriod = "daily"
	BillingPeriodWeekly  BillingPeriod = "weekly"
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// Duration maps the billing period to a fixed interval. Monthly and yearly are
// approximated as 30 and 365 days; unrecognized periods fall back to 30 days.
func (b BillingPeriod) Duration() time.Duration {
	switch b {
	case BillingPeriodDaily:
		return 24 * time.Hour
	case BillingPeriodWeekly:
		return 7 * 24 * time.Hour
	case BillingPeriodYearly:
		return 365 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// PaymentPlan is a policy template users can subscribe to. Only the fields
// relevant to PaymentType are meaningful: FreeRequests for freemium,
// BillingPeriod/RequestsPerPeriod for subscription, PricePerRequest for
// pay-per-use. The rest are ignored by the metering engine.
type PaymentPlan struct {
	ID                string        `json:"id" db:"id"`
	Name              string        `json:"name" db:"name"`
	Description       string        `json:"description" db:"description"`
	PaymentType       PaymentType   `json:"payment_type" db:"payment_type"`
	Price             float64       `json:"price" db:"price"`
	Currency          string        `json:"currency" db:"currency"`
	PricePerRequest   *float64      `json:"price_per_request" db:"price_per_request"`
	BillingPeriod     BillingPeriod `json:"billing_period" db:"billing_period"`
	RequestsPerPeriod *int          `json:"requests_per_period" db:"requests_per_period"`
	FreeRequests      int           `json:"free_requests" db:"free_requests"`
	Features          []string      `json:"features" db:"features"`
	IsActive          bool          `json:"is_active" db:"is_active"`
	CreatedAt         time.Time     `json:"created_at" db:"created_at"`
}

func (p *PaymentPlan) IsFreemium() bool {
	return p.PaymentType == PaymentTypeFreemium
}

func (p *PaymentPlan) IsSubscription() bool {
	return p.PaymentType == PaymentTypeSubscription
}

func (p *PaymentPlan) IsPayPerUse() bool {
	return p.PaymentType == PaymentTypePayPerUse
}

// HasFeature reports whether the plan unlocks the given feature.
func (p *PaymentPlan) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// Validate checks the plan fields before persisting.
func (p *PaymentPlan) Validate() error {
	if p.ID == "" {
		return &ValidationError{Field: "id", Message: "plan id cannot be empty"}
	}
	if p.Name == "" {
		return &ValidationError{Field: "name", Message: "plan name cannot be empty"}
	}
	switch p.PaymentType {
	case PaymentTypePayPerUse, PaymentTypeSubscription, PaymentTypeFreemium:
	default:
		return &ValidationError{Field: "payment_type", Message: "unknown payment type: " + string(p.PaymentType)}
	}
	if p.BillingPeriod != "" {
		switch p.BillingPeriod {
		case BillingPeriodDaily, BillingPeriodWeekly, BillingPeriodMonthly, BillingPeriodYearly:
		default:
			return &ValidationError{Field: "billing_period", Message: "unknown billing period: " + string(p.BillingPeriod)}
		}
	}
	if p.IsSubscription() && p.BillingPeriod == "" {
		return &ValidationError{Field: "billing_period", Message: "billing period is required for subscription plans"}
	}
	if p.Price < 0 {
		return &ValidationError{Field: "price", Message: "price cannot be negative"}
	}
	if p.PricePerRequest != nil && *p.PricePerRequest < 0 {
		return &ValidationError{Field: "price_per_request", Message: "price per request cannot be negative"}
	}
	if p.RequestsPerPeriod != nil && *p.RequestsPerPeriod < 0 {
		return &ValidationError{Field: "requests_per_period", Message: "requests per period cannot be negative"}
	}
	if p.FreeRequests < 0 {
		return &ValidationError{Field: "free_requests", Message: "free requests cannot be negative"}
	}
	if p.Currency == "" {
		return &ValidationError{Field: "currency", Message: "currency cannot be empty"}
	}
	return nil
}

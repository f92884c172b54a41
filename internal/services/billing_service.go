package services

import (
	"context"
	"fmt"
	"log"

	"agentpay/internal/models"
	"agentpay/internal/providers"
	"agentpay/internal/storage"
)

// BillingService settles pay-per-use charges through a payment provider and
// records the metered usage once the money has cleared.
type BillingService interface {
	ChargeForFeature(ctx context.Context, userID, feature string, metadata map[string]string) (*models.PaymentTransaction, error)
	GetTransaction(ctx context.Context, transactionID string) (*models.PaymentTransaction, error)
	RefundTransaction(ctx context.Context, transactionID string) (*models.PaymentTransaction, error)
}

type billingService struct {
	store    storage.Backend
	plans    PlanService
	metering MeteringService
	provider providers.PaymentProvider
}

// NewBillingService creates a new BillingService instance
func NewBillingService(store storage.Backend, plans PlanService, metering MeteringService, provider providers.PaymentProvider) BillingService {
	return &billingService{store: store, plans: plans, metering: metering, provider: provider}
}

// ChargeForFeature resolves the pay-per-use price for the feature, settles it
// through the provider, then records the usage. The charge happens first so a
// provider failure never leaves a free ledger entry behind.
func (s *billingService) ChargeForFeature(ctx context.Context, userID, feature string, metadata map[string]string) (*models.PaymentTransaction, error) {
	if userID == "" {
		return nil, &models.ValidationError{Field: "user_id", Message: "user_id must not be empty"}
	}
	if feature == "" {
		return nil, &models.ValidationError{Field: "feature", Message: "feature must not be empty"}
	}

	plan, err := s.payPerUsePlan(ctx, feature)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, &models.PaymentRequired{Feature: feature}
	}
	price := *plan.PricePerRequest

	txnMetadata := map[string]string{"feature": feature, "plan_id": plan.ID}
	for k, v := range metadata {
		txnMetadata[k] = v
	}
	txn, err := s.provider.ProcessPayment(ctx, userID, price, plan.Currency, txnMetadata)
	if err != nil {
		return nil, &models.PaymentFailed{Reason: fmt.Sprintf("provider %s: %v", s.provider.Name(), err)}
	}

	if _, err := s.metering.RecordUsage(ctx, userID, feature, &price); err != nil {
		// The money moved but the ledger write failed. Surface the error and
		// leave the transaction for reconciliation.
		log.Printf("WARN: payment %s settled but usage record failed: %v", txn.ID, err)
		return txn, err
	}
	return txn, nil
}

func (s *billingService) GetTransaction(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	return s.store.GetTransaction(ctx, transactionID)
}

// RefundTransaction reverses a completed transaction through the provider.
func (s *billingService) RefundTransaction(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	txn, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, &models.ValidationError{Field: "transaction_id", Message: "transaction not found"}
	}
	refunded, err := s.provider.Refund(ctx, transactionID)
	if err != nil {
		return nil, &models.PaymentFailed{Reason: fmt.Sprintf("refund via %s: %v", s.provider.Name(), err)}
	}
	return refunded, nil
}

// payPerUsePlan finds the priced plan listing the feature, preferring the
// lowest plan id like the access check does.
func (s *billingService) payPerUsePlan(ctx context.Context, feature string) (*models.PaymentPlan, error) {
	plans, err := s.plans.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	var match *models.PaymentPlan
	for _, plan := range plans {
		if !plan.IsPayPerUse() || !plan.HasFeature(feature) || plan.PricePerRequest == nil {
			continue
		}
		if match == nil || plan.ID < match.ID {
			match = plan
		}
	}
	return match, nil
}

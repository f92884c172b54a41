package services

import (
	"context"
	"errors"
	"testing"

	"agentpay/internal/models"
	"agentpay/internal/providers"
	"agentpay/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type BillingServiceTestSuite struct {
	suite.Suite
	store   *storage.MemoryBackend
	plans   PlanService
	usage   UsageService
	billing BillingService
	ctx     context.Context
}

func (suite *BillingServiceTestSuite) SetupTest() {
	suite.store = storage.NewMemoryBackend()
	suite.plans = NewPlanService(suite.store, nil)
	suite.usage = NewUsageService(suite.store)
	subscriptions := NewSubscriptionService(suite.store)
	metering := NewMeteringService(suite.store, subscriptions, "")
	provider := providers.NewMockProvider(suite.store)
	suite.billing = NewBillingService(suite.store, suite.plans, metering, provider)
	suite.ctx = context.Background()
}

func TestBillingServiceTestSuite(t *testing.T) {
	suite.Run(t, new(BillingServiceTestSuite))
}

func (suite *BillingServiceTestSuite) TestChargeForFeature() {
	assert.NoError(suite.T(), suite.plans.CreatePlan(suite.ctx, payPerUsePlan("metered", 0.05, "summarize")))

	txn, err := suite.billing.ChargeForFeature(suite.ctx, "user-1", "summarize", map[string]string{"request_id": "r1"})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TransactionStatusCompleted, txn.Status)
	assert.Equal(suite.T(), 0.05, txn.Amount)
	assert.Equal(suite.T(), "summarize", txn.Metadata["feature"])

	// The settled charge shows up in the ledger.
	total, err := suite.usage.GetTotalCost(suite.ctx, "user-1", nil, nil)
	assert.NoError(suite.T(), err)
	assert.InDelta(suite.T(), 0.05, total, 1e-9)

	stored, err := suite.billing.GetTransaction(suite.ctx, txn.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), txn.ID, stored.ID)
}

func (suite *BillingServiceTestSuite) TestChargeForFeature_NoPricedPlan() {
	_, err := suite.billing.ChargeForFeature(suite.ctx, "user-1", "summarize", nil)
	var payErr *models.PaymentRequired
	assert.True(suite.T(), errors.As(err, &payErr))
}

func (suite *BillingServiceTestSuite) TestChargeForFeature_Validation() {
	_, err := suite.billing.ChargeForFeature(suite.ctx, "", "summarize", nil)
	var valErr *models.ValidationError
	assert.True(suite.T(), errors.As(err, &valErr))

	_, err = suite.billing.ChargeForFeature(suite.ctx, "user-1", "", nil)
	assert.True(suite.T(), errors.As(err, &valErr))
}

func (suite *BillingServiceTestSuite) TestRefundTransaction() {
	assert.NoError(suite.T(), suite.plans.CreatePlan(suite.ctx, payPerUsePlan("metered", 1.00, "summarize")))

	txn, err := suite.billing.ChargeForFeature(suite.ctx, "user-1", "summarize", nil)
	assert.NoError(suite.T(), err)

	refunded, err := suite.billing.RefundTransaction(suite.ctx, txn.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.TransactionStatusRefunded, refunded.Status)
}

func (suite *BillingServiceTestSuite) TestRefundTransaction_Unknown() {
	_, err := suite.billing.RefundTransaction(suite.ctx, "txn_missing")
	var valErr *models.ValidationError
	assert.True(suite.T(), errors.As(err, &valErr))
}

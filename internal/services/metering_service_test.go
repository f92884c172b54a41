package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"agentpay/internal/models"
	"agentpay/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type MeteringServiceTestSuite struct {
	suite.Suite
	store         *storage.MemoryBackend
	subscriptions SubscriptionService
	metering      MeteringService
	ctx           context.Context
}

func (suite *MeteringServiceTestSuite) SetupTest() {
	suite.store = storage.NewMemoryBackend()
	suite.subscriptions = NewSubscriptionService(suite.store)
	suite.metering = NewMeteringService(suite.store, suite.subscriptions, "")
	suite.ctx = context.Background()
}

func TestMeteringServiceTestSuite(t *testing.T) {
	suite.Run(t, new(MeteringServiceTestSuite))
}

func (suite *MeteringServiceTestSuite) savePlan(plan *models.PaymentPlan) {
	assert.NoError(suite.T(), suite.store.SavePlan(suite.ctx, plan))
}

func freemiumPlan(id string, freeRequests int, features ...string) *models.PaymentPlan {
	return &models.PaymentPlan{
		ID:           id,
		Name:         "Freemium " + id,
		PaymentType:  models.PaymentTypeFreemium,
		Currency:     "USD",
		FreeRequests: freeRequests,
		Features:     features,
		IsActive:     true,
	}
}

func subscriptionPlan(id string, requestsPerPeriod int, features ...string) *models.PaymentPlan {
	return &models.PaymentPlan{
		ID:                id,
		Name:              "Subscription " + id,
		PaymentType:       models.PaymentTypeSubscription,
		Price:             10,
		Currency:          "USD",
		BillingPeriod:     models.BillingPeriodMonthly,
		RequestsPerPeriod: &requestsPerPeriod,
		Features:          features,
		IsActive:          true,
	}
}

func payPerUsePlan(id string, pricePerRequest float64, features ...string) *models.PaymentPlan {
	return &models.PaymentPlan{
		ID:              id,
		Name:            "Pay per use " + id,
		PaymentType:     models.PaymentTypePayPerUse,
		Currency:        "USD",
		PricePerRequest: &pricePerRequest,
		Features:        features,
		IsActive:        true,
	}
}

func (suite *MeteringServiceTestSuite) TestFreemiumQuota() {
	suite.savePlan(freemiumPlan("free-tier", 2, "summarize"))

	for i := 0; i < 2; i++ {
		allowed, err := suite.metering.CheckAccess(suite.ctx, "user-1", "summarize")
		assert.NoError(suite.T(), err)
		assert.True(suite.T(), allowed)

		_, err = suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
		assert.NoError(suite.T(), err)
	}

	allowed, err := suite.metering.CheckAccess(suite.ctx, "user-1", "summarize")
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), allowed)

	_, err = suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
	var limitErr *models.UsageLimitExceeded
	assert.True(suite.T(), errors.As(err, &limitErr))
	assert.Equal(suite.T(), "summarize", limitErr.Feature)
	assert.Equal(suite.T(), 2, limitErr.Limit)
}

func (suite *MeteringServiceTestSuite) TestCheckAccessDoesNotConsumeQuota() {
	suite.savePlan(freemiumPlan("free-tier", 1, "summarize"))

	for i := 0; i < 10; i++ {
		allowed, err := suite.metering.CheckAccess(suite.ctx, "user-1", "summarize")
		assert.NoError(suite.T(), err)
		assert.True(suite.T(), allowed)
	}

	_, err := suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
	assert.NoError(suite.T(), err)
}

func (suite *MeteringServiceTestSuite) TestFreemiumLowestPlanIDWins() {
	suite.savePlan(freemiumPlan("b-tier", 5, "summarize"))
	suite.savePlan(freemiumPlan("a-tier", 1, "summarize"))

	_, err := suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
	assert.NoError(suite.T(), err)

	allowed, err := suite.metering.CheckAccess(suite.ctx, "user-1", "summarize")
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), allowed, "the a-tier quota of 1 governs, not b-tier's 5")
}

func (suite *MeteringServiceTestSuite) TestSubscriptionQuota() {
	suite.savePlan(subscriptionPlan("pro", 5, "summarize"))
	_, err := suite.subscriptions.Create(suite.ctx, "user-1", "pro", nil)
	assert.NoError(suite.T(), err)

	for i := 0; i < 5; i++ {
		_, err := suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
		assert.NoError(suite.T(), err)
	}

	allowed, err := suite.metering.CheckAccess(suite.ctx, "user-1", "summarize")
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), allowed)

	_, err = suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
	var limitErr *models.UsageLimitExceeded
	assert.True(suite.T(), errors.As(err, &limitErr))
	assert.Equal(suite.T(), 5, limitErr.Limit)
}

func (suite *MeteringServiceTestSuite) TestSubscriptionQuotaUnderConcurrency() {
	suite.savePlan(subscriptionPlan("pro", 5, "summarize"))
	_, err := suite.subscriptions.Create(suite.ctx, "user-1", "pro", nil)
	assert.NoError(suite.T(), err)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, denied := 0, 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var limitErr *models.UsageLimitExceeded
		assert.True(suite.T(), errors.As(err, &limitErr))
		denied++
	}
	assert.Equal(suite.T(), 5, succeeded)
	assert.Equal(suite.T(), 5, denied)

	records, err := suite.store.GetUserUsage(suite.ctx, "user-1", nil, nil)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), records, 5)
}

func (suite *MeteringServiceTestSuite) TestFreemiumQuotaUnderConcurrency() {
	suite.savePlan(freemiumPlan("free-tier", 5, "summarize"))

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(suite.T(), 5, succeeded)

	records, err := suite.store.GetUserUsage(suite.ctx, "user-1", nil, nil)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), records, 5)
}

func (suite *MeteringServiceTestSuite) TestRenewalResetsSubscriptionQuota() {
	suite.savePlan(subscriptionPlan("pro", 2, "summarize"))
	_, err := suite.subscriptions.Create(suite.ctx, "user-1", "pro", nil)
	assert.NoError(suite.T(), err)

	for i := 0; i < 2; i++ {
		_, err := suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
		assert.NoError(suite.T(), err)
	}
	_, err = suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
	assert.Error(suite.T(), err)

	renewed, err := suite.subscriptions.Renew(suite.ctx, "user-1")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 0, renewed.UsageCount)

	_, err = suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
	assert.NoError(suite.T(), err)
}

func (suite *MeteringServiceTestSuite) TestNoGoverningPlanDeniesAccess() {
	allowed, err := suite.metering.CheckAccess(suite.ctx, "user-1", "summarize")
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), allowed)

	err = suite.metering.DenialError(suite.ctx, "user-1", "summarize", nil)
	var payErr *models.PaymentRequired
	assert.True(suite.T(), errors.As(err, &payErr))
	assert.Equal(suite.T(), "summarize", payErr.Feature)
}

func (suite *MeteringServiceTestSuite) TestDefaultPayPerUsePlanGrantsAccess() {
	suite.savePlan(payPerUsePlan("metered", 0.05, "summarize"))
	metering := NewMeteringService(suite.store, suite.subscriptions, "metered")

	allowed, err := metering.CheckAccess(suite.ctx, "user-1", "summarize")
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), allowed)

	// The default plan only covers its listed features.
	allowed, err = metering.CheckAccess(suite.ctx, "user-1", "translate")
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), allowed)
}

func (suite *MeteringServiceTestSuite) TestSubscriptionBeatsFreemium() {
	suite.savePlan(freemiumPlan("free-tier", 1, "summarize"))
	suite.savePlan(subscriptionPlan("pro", 100, "summarize"))
	_, err := suite.subscriptions.Create(suite.ctx, "user-1", "pro", nil)
	assert.NoError(suite.T(), err)

	// Exhaust the freemium allowance.
	_, err = suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
	assert.NoError(suite.T(), err)

	// The subscription still grants access even though freemium is spent.
	allowed, err := suite.metering.CheckAccess(suite.ctx, "user-1", "summarize")
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), allowed)
}

func (suite *MeteringServiceTestSuite) TestValidationErrors() {
	_, err := suite.metering.RecordUsage(suite.ctx, "", "summarize", nil)
	var valErr *models.ValidationError
	assert.True(suite.T(), errors.As(err, &valErr))

	_, err = suite.metering.RecordUsage(suite.ctx, "user-1", "", nil)
	assert.True(suite.T(), errors.As(err, &valErr))

	negative := -1.0
	_, err = suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", &negative)
	assert.True(suite.T(), errors.As(err, &valErr))

	_, err = suite.metering.CheckAccess(suite.ctx, "", "summarize")
	assert.True(suite.T(), errors.As(err, &valErr))
}

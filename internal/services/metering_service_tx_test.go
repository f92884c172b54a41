package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentpay/internal/models"
	"agentpay/internal/storage"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// MeteringTxTestSuite exercises the engine's transactional strategy against a
// scripted postgres backend. Expectations are matched in order, so these
// tests pin the usage lock to before the quota re-read.
type MeteringTxTestSuite struct {
	suite.Suite
	mock     pgxmock.PgxPoolIface
	metering MeteringService
	ctx      context.Context
}

func (suite *MeteringTxTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock
	backend := storage.NewPostgresBackend(mock)
	suite.metering = NewMeteringService(backend, NewSubscriptionService(backend), "")
	suite.ctx = context.Background()
}

func (suite *MeteringTxTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
	suite.mock.Close()
}

func TestMeteringTxTestSuite(t *testing.T) {
	suite.Run(t, new(MeteringTxTestSuite))
}

func pgPlanColumns() []string {
	return []string{"id", "name", "description", "payment_type", "price", "currency", "price_per_request", "billing_period", "requests_per_period", "free_requests", "features", "is_active", "created_at"}
}

func pgUsageColumns() []string {
	return []string{"id", "user_id", "feature", "timestamp", "cost", "currency", "metadata"}
}

func (suite *MeteringTxTestSuite) expectLockThenPlans(planRows *pgxmock.Rows) {
	suite.mock.ExpectBegin()
	suite.mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\), hashtext\(\$2\)\)`).
		WithArgs("user-1", "summarize").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	suite.mock.ExpectQuery(`SELECT (.+) FROM payment_plans`).WillReturnRows(planRows)
}

func (suite *MeteringTxTestSuite) TestRecordUsageLocksBeforeRecheck() {
	freeTier := pgxmock.NewRows(pgPlanColumns()).
		AddRow("free-tier", "Free tier", "", "freemium", 0.0, "USD", (*float64)(nil), "", (*int)(nil), 5, []string{"summarize"}, true, time.Now().UTC())

	suite.expectLockThenPlans(freeTier)
	suite.mock.ExpectQuery(`SELECT (.+) FROM usage_records`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(pgUsageColumns()))
	suite.mock.ExpectQuery(`SELECT (.+) FROM subscriptions`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	suite.mock.ExpectExec(`INSERT INTO usage_records`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	suite.mock.ExpectCommit()

	record, err := suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "summarize", record.Feature)
}

func (suite *MeteringTxTestSuite) TestRecordUsageExhaustedQuotaRollsBack() {
	freeTier := pgxmock.NewRows(pgPlanColumns()).
		AddRow("free-tier", "Free tier", "", "freemium", 0.0, "USD", (*float64)(nil), "", (*int)(nil), 1, []string{"summarize"}, true, time.Now().UTC())

	suite.expectLockThenPlans(freeTier)
	suite.mock.ExpectQuery(`SELECT (.+) FROM usage_records`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(pgUsageColumns()).
			AddRow(uuid.New(), "user-1", "summarize", time.Now().UTC(), (*float64)(nil), "USD", (map[string]string)(nil)))
	suite.mock.ExpectRollback()

	_, err := suite.metering.RecordUsage(suite.ctx, "user-1", "summarize", nil)
	var limitErr *models.UsageLimitExceeded
	assert.True(suite.T(), errors.As(err, &limitErr))
	assert.Equal(suite.T(), 1, limitErr.Limit)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentpay/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the backend needs. pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend persists everything in PostgreSQL and supports real
// transactions, so the engine uses the transactional strategy against it.
type PostgresBackend struct {
	db DB
	q  querier
}

func NewPostgresBackend(db DB) *PostgresBackend {
	return &PostgresBackend{db: db, q: db}
}

func (p *PostgresBackend) Capabilities() Capabilities {
	return Capabilities{SupportsTransactions: true, Persistent: true}
}

// BeginTx starts a transaction. The returned Tx runs every query against it
// until Commit or Rollback.
func (p *PostgresBackend) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, &models.StorageError{Op: "begin", Err: err}
	}
	return &postgresTx{PostgresBackend: PostgresBackend{db: p.db, q: tx}, tx: tx}, nil
}

type postgresTx struct {
	PostgresBackend
	tx pgx.Tx
}

// LockUsage takes a transaction-scoped advisory lock keyed on the user and
// feature. READ COMMITTED alone lets two transactions both count N-1 rows and
// both insert; the lock forces the second to wait until the first commits, so
// its re-count sees the committed row. Postgres releases the lock at
// transaction end.
func (t *postgresTx) LockUsage(ctx context.Context, userID, feature string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, userID, feature)
	if err != nil {
		return &models.StorageError{Op: "lock usage", Err: err}
	}
	return nil
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

func (p *PostgresBackend) SavePlan(ctx context.Context, plan *models.PaymentPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO payment_plans (id, name, description, payment_type, price, currency, price_per_request, billing_period, requests_per_period, free_requests, features, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			payment_type = EXCLUDED.payment_type,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			price_per_request = EXCLUDED.price_per_request,
			billing_period = EXCLUDED.billing_period,
			requests_per_period = EXCLUDED.requests_per_period,
			free_requests = EXCLUDED.free_requests,
			features = EXCLUDED.features,
			is_active = EXCLUDED.is_active
	`
	_, err := p.q.Exec(ctx, query, plan.ID, plan.Name, plan.Description, string(plan.PaymentType), plan.Price, plan.Currency, plan.PricePerRequest, string(plan.BillingPeriod), plan.RequestsPerPeriod, plan.FreeRequests, plan.Features, plan.IsActive, plan.CreatedAt)
	if err != nil {
		return &models.StorageError{Op: "save plan", Err: err}
	}
	return nil
}

func (p *PostgresBackend) GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	plan := &models.PaymentPlan{}
	var paymentType, billingPeriod string
	query := `
		SELECT id, name, description, payment_type, price, currency, price_per_request, billing_period, requests_per_period, free_requests, features, is_active, created_at
		FROM payment_plans
		WHERE id = $1
	`
	err := p.q.QueryRow(ctx, query, planID).Scan(&plan.ID, &plan.Name, &plan.Description, &paymentType, &plan.Price, &plan.Currency, &plan.PricePerRequest, &billingPeriod, &plan.RequestsPerPeriod, &plan.FreeRequests, &plan.Features, &plan.IsActive, &plan.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get plan", Err: err}
	}
	plan.PaymentType = models.PaymentType(paymentType)
	plan.BillingPeriod = models.BillingPeriod(billingPeriod)
	return plan, nil
}

func (p *PostgresBackend) ListPlans(ctx context.Context) ([]*models.PaymentPlan, error) {
	query := `
		SELECT id, name, description, payment_type, price, currency, price_per_request, billing_period, requests_per_period, free_requests, features, is_active, created_at
		FROM payment_plans
		ORDER BY id
	`
	rows, err := p.q.Query(ctx, query)
	if err != nil {
		return nil, &models.StorageError{Op: "list plans", Err: err}
	}
	defer rows.Close()

	var plans []*models.PaymentPlan
	for rows.Next() {
		plan := &models.PaymentPlan{}
		var paymentType, billingPeriod string
		if err := rows.Scan(&plan.ID, &plan.Name, &plan.Description, &paymentType, &plan.Price, &plan.Currency, &plan.PricePerRequest, &billingPeriod, &plan.RequestsPerPeriod, &plan.FreeRequests, &plan.Features, &plan.IsActive, &plan.CreatedAt); err != nil {
			return nil, &models.StorageError{Op: "list plans", Err: err}
		}
		plan.PaymentType = models.PaymentType(paymentType)
		plan.BillingPeriod = models.BillingPeriod(billingPeriod)
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func (p *PostgresBackend) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO subscriptions (id, user_id, plan_id, status, start_date, current_period_start, current_period_end, usage_count, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			plan_id = EXCLUDED.plan_id,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			usage_count = EXCLUDED.usage_count,
			metadata = EXCLUDED.metadata,
			updated_at = NOW()
	`
	_, err := p.q.Exec(ctx, query, sub.ID, sub.UserID, sub.PlanID, sub.Status, sub.StartDate, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.UsageCount, sub.Metadata)
	if err != nil {
		return &models.StorageError{Op: "save subscription", Err: err}
	}
	return nil
}

const subscriptionColumns = `id, user_id, plan_id, status, start_date, current_period_start, current_period_end, usage_count, metadata, created_at, updated_at`

func (p *PostgresBackend) scanSubscription(row pgx.Row) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status, &sub.StartDate, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.UsageCount, &sub.Metadata, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (p *PostgresBackend) GetSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE id = $1`, subscriptionColumns)
	sub, err := p.scanSubscription(p.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get subscription", Err: err}
	}
	return sub, nil
}

func (p *PostgresBackend) GetUserSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, subscriptionColumns)
	sub, err := p.scanSubscription(p.q.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get user subscription", Err: err}
	}
	return sub, nil
}

func (p *PostgresBackend) ListSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions ORDER BY created_at`, subscriptionColumns)
	rows, err := p.q.Query(ctx, query)
	if err != nil {
		return nil, &models.StorageError{Op: "list subscriptions", Err: err}
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub, err := p.scanSubscription(rows)
		if err != nil {
			return nil, &models.StorageError{Op: "list subscriptions", Err: err}
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (p *PostgresBackend) SaveUsageRecord(ctx context.Context, record *models.UsageRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO usage_records (id, user_id, feature, timestamp, cost, currency, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := p.q.Exec(ctx, query, record.ID, record.UserID, record.Feature, record.Timestamp, record.Cost, record.Currency, record.Metadata)
	if err != nil {
		return &models.StorageError{Op: "save usage record", Err: err}
	}
	return nil
}

func (p *PostgresBackend) GetUserUsage(ctx context.Context, userID string, start, end *time.Time) ([]*models.UsageRecord, error) {
	query := `SELECT id, user_id, feature, timestamp, cost, currency, metadata FROM usage_records WHERE user_id = $1`
	args := []any{userID}
	if start != nil {
		args = append(args, *start)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}

	rows, err := p.q.Query(ctx, query, args...)
	if err != nil {
		return nil, &models.StorageError{Op: "get user usage", Err: err}
	}
	defer rows.Close()

	var records []*models.UsageRecord
	for rows.Next() {
		record := &models.UsageRecord{}
		if err := rows.Scan(&record.ID, &record.UserID, &record.Feature, &record.Timestamp, &record.Cost, &record.Currency, &record.Metadata); err != nil {
			return nil, &models.StorageError{Op: "get user usage", Err: err}
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (p *PostgresBackend) SaveTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO payment_transactions (id, user_id, amount, currency, payment_method, status, created_at, completed_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			metadata = EXCLUDED.metadata
	`
	_, err := p.q.Exec(ctx, query, txn.ID, txn.UserID, txn.Amount, txn.Currency, txn.PaymentMethod, txn.Status, txn.CreatedAt, txn.CompletedAt, txn.Metadata)
	if err != nil {
		return &models.StorageError{Op: "save transaction", Err: err}
	}
	return nil
}

func (p *PostgresBackend) GetTransaction(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	txn := &models.PaymentTransaction{}
	query := `
		SELECT id, user_id, amount, currency, payment_method, status, created_at, completed_at, metadata
		FROM payment_transactions
		WHERE id = $1
	`
	err := p.q.QueryRow(ctx, query, id).Scan(&txn.ID, &txn.UserID, &txn.Amount, &txn.Currency, &txn.PaymentMethod, &txn.Status, &txn.CreatedAt, &txn.CompletedAt, &txn.Metadata)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &models.StorageError{Op: "get transaction", Err: err}
	}
	return txn, nil
}

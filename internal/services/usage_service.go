package services

import (
	"context"
	"log"
	"time"

	"agentpay/internal/models"
	"agentpay/internal/storage"

	"github.com/google/uuid"
)

// UsageService is the append-only usage ledger with aggregate queries over it.
type UsageService interface {
	RecordUsage(ctx context.Context, userID, feature string, cost *float64, metadata map[string]string) (*models.UsageRecord, error)
	GetUserUsage(ctx context.Context, userID string, start, end *time.Time) ([]*models.UsageRecord, error)
	GetUsageCount(ctx context.Context, userID, feature string, start, end *time.Time) (int, error)
	GetTotalCost(ctx context.Context, userID string, start, end *time.Time) (float64, error)
}

type usageService struct {
	store storage.Backend
}

// NewUsageService creates a new UsageService instance
func NewUsageService(store storage.Backend) UsageService {
	return &usageService{store: store}
}

// RecordUsage appends a usage record with a fresh id and a UTC timestamp. It
// enforces no quota; quota-aware recording goes through the metering engine.
func (s *usageService) RecordUsage(ctx context.Context, userID, feature string, cost *float64, metadata map[string]string) (*models.UsageRecord, error) {
	record, err := buildUsageRecord(userID, feature, cost, metadata)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveUsageRecord(ctx, record); err != nil {
		return nil, err
	}
	log.Printf("Recorded usage for user %s, feature %s, cost: %.2f", userID, feature, record.CostOrZero())
	return record, nil
}

// GetUserUsage returns records within the optional inclusive date bounds.
// Ordering is not part of the contract; callers sort if it matters.
func (s *usageService) GetUserUsage(ctx context.Context, userID string, start, end *time.Time) ([]*models.UsageRecord, error) {
	return s.store.GetUserUsage(ctx, userID, start, end)
}

func (s *usageService) GetUsageCount(ctx context.Context, userID, feature string, start, end *time.Time) (int, error) {
	return countUsage(ctx, s.store, userID, feature, start, end)
}

func (s *usageService) GetTotalCost(ctx context.Context, userID string, start, end *time.Time) (float64, error) {
	records, err := s.store.GetUserUsage(ctx, userID, start, end)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, record := range records {
		total += record.CostOrZero()
	}
	return total, nil
}

// buildUsageRecord validates inputs and constructs an unsaved record.
func buildUsageRecord(userID, feature string, cost *float64, metadata map[string]string) (*models.UsageRecord, error) {
	record := &models.UsageRecord{
		ID:        uuid.New(),
		UserID:    userID,
		Feature:   feature,
		Timestamp: time.Now().UTC(),
		Cost:      cost,
		Currency:  "USD",
		Metadata:  metadata,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

// countUsage counts ledger entries for (user, feature) through any backend
// view, including a transaction, so the engine can re-read counts inside its
// critical section.
func countUsage(ctx context.Context, b storage.Backend, userID, feature string, start, end *time.Time) (int, error) {
	records, err := b.GetUserUsage(ctx, userID, start, end)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, record := range records {
		if record.Feature == feature {
			count++
		}
	}
	return count, nil
}

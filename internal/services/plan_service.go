package services

import (
	"context"
	"log"
	"time"

	"agentpay/internal/caching"
	"agentpay/internal/models"
	"agentpay/internal/storage"
)

const planCacheTTL = 5 * time.Minute

// PlanService manages the plan catalog. Plans are administrator-managed policy
// records; a re-save overwrites (last write wins, no versioning).
type PlanService interface {
	CreatePlan(ctx context.Context, plan *models.PaymentPlan) error
	GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error)
	ListPlans(ctx context.Context) ([]*models.PaymentPlan, error)
}

type planService struct {
	store storage.Backend
	cache caching.PlanCache
}

// NewPlanService creates a new PlanService instance. The cache may be nil.
func NewPlanService(store storage.Backend, cache caching.PlanCache) PlanService {
	return &planService{store: store, cache: cache}
}

func (s *planService) CreatePlan(ctx context.Context, plan *models.PaymentPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	existing, err := s.store.GetPlan(ctx, plan.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Printf("Payment plan %s already exists, updating", plan.ID)
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	if err := s.store.SavePlan(ctx, plan); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.DeletePlan(ctx, plan.ID); err != nil {
			log.Printf("WARN: failed to invalidate plan cache for %s: %v", plan.ID, err)
		}
	}
	log.Printf("Created/updated payment plan: %s", plan.ID)
	return nil
}

func (s *planService) GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	if s.cache != nil {
		cached, err := s.cache.GetPlan(ctx, planID)
		if err != nil {
			log.Printf("WARN: plan cache read failed for %s: %v", planID, err)
		} else if cached != nil {
			return cached, nil
		}
	}
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan != nil && s.cache != nil {
		if err := s.cache.SetPlan(ctx, plan, planCacheTTL); err != nil {
			log.Printf("WARN: plan cache write failed for %s: %v", planID, err)
		}
	}
	return plan, nil
}

func (s *planService) ListPlans(ctx context.Context) ([]*models.PaymentPlan, error) {
	return s.store.ListPlans(ctx)
}

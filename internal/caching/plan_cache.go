package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"agentpay/internal/models"

	"github.com/redis/go-redis/v9"
)

// PlanCache is a read cache in front of the plan catalog. Cache misses and
// cache failures both fall through to storage; it is never authoritative.
type PlanCache interface {
	GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error)
	SetPlan(ctx context.Context, plan *models.PaymentPlan, ttl time.Duration) error
	DeletePlan(ctx context.Context, planID string) error
}

type redisPlanCache struct {
	client *redis.Client
}

// NewRedisPlanCache creates a redis-backed plan cache.
func NewRedisPlanCache(addr, password string, db int) PlanCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", err, addr)
	}

	return &redisPlanCache{client: client}
}

func planKey(planID string) string {
	return fmt.Sprintf("agentpay:plan:%s", planID)
}

func (r *redisPlanCache) GetPlan(ctx context.Context, planID string) (*models.PaymentPlan, error) {
	data, err := r.client.Get(ctx, planKey(planID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var plan models.PaymentPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *redisPlanCache) SetPlan(ctx context.Context, plan *models.PaymentPlan, ttl time.Duration) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, planKey(plan.ID), data, ttl).Err()
}

func (r *redisPlanCache) DeletePlan(ctx context.Context, planID string) error {
	return r.client.Del(ctx, planKey(planID)).Err()
}

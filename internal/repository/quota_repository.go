package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const quotaKeyTTL = 48 * time.Hour

// QuotaRepository tracks source API call usage per organization and UTC day
// in Redis, so quota telemetry survives process restarts.
type QuotaRepository struct {
	client *redis.Client
}

// NewQuotaRepository constructs the repository.
func NewQuotaRepository(client *redis.Client) *QuotaRepository {
	return &QuotaRepository{client: client}
}

func quotaKey(organizationID string, day time.Time) string {
	return fmt.Sprintf("mindbody:quota:%s:%s", organizationID, day.UTC().Format("2006-01-02"))
}

// AddCalls accumulates n API calls against today's quota counter and
// returns the new daily total.
func (r *QuotaRepository) AddCalls(ctx context.Context, organizationID string, n int64) (int64, error) {
	if r.client == nil || n <= 0 {
		return 0, nil
	}
	key := quotaKey(organizationID, time.Now())
	total, err := r.client.IncrBy(ctx, key, n).Result()
	if err != nil {
		return 0, fmt.Errorf("increment quota counter: %w", err)
	}
	if err := r.client.Expire(ctx, key, quotaKeyTTL).Err(); err != nil {
		return total, fmt.Errorf("expire quota counter: %w", err)
	}
	return total, nil
}

// DailyCalls returns today's accumulated API call count.
func (r *QuotaRepository) DailyCalls(ctx context.Context, organizationID string) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	key := quotaKey(organizationID, time.Now())
	total, err := r.client.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("read quota counter: %w", err)
	}
	return total, nil
}

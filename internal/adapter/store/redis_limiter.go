package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// limitWindow is the rolling window the per-user request budget covers.
const limitWindow = 24 * time.Hour

type RedisLimiter struct {
	client *redis.Client
	limit  int // Max requests per window
}

func NewRedisLimiter(client *redis.Client, limit int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	val, err := r.client.Get(ctx, "requests:"+userID).Result()
	if err == redis.Nil {
		return true, nil // No usage yet
	}
	if err != nil {
		return false, err
	}
	used, _ := strconv.Atoi(val)
	return used < r.limit, nil
}

func (r *RedisLimiter) Record(ctx context.Context, userID string) error {
	key := "requests:" + userID
	val, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if val == 1 {
		return r.client.Expire(ctx, key, limitWindow).Err()
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gprbooking/internal/config"
	"gprbooking/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	dayKeyPrefix       = "gpr:day:"
	rateLimitKeyPrefix = "gpr:rate:"
)

type RedisStateRepository struct {
	client *redis.Client
}

// NewRedisClient builds a client from config; it does not dial.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStateRepository(client *redis.Client) *RedisStateRepository {
	return &RedisStateRepository{client: client}
}

// GetDay returns the cached records for date and whether the key was present.
func (r *RedisStateRepository) GetDay(ctx context.Context, date string) ([]models.Booking, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, dayKeyPrefix+date).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get day from redis: %w", err)
	}

	var records []models.Booking
	if err := json.Unmarshal(val, &records); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal day: %w", err)
	}
	return records, true, nil
}

func (r *RedisStateRepository) SetDay(ctx context.Context, date string, records []models.Booking, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if records == nil {
		records = []models.Booking{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal day: %w", err)
	}
	if err := r.client.Set(ctx, dayKeyPrefix+date, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set day in redis: %w", err)
	}
	return nil
}

func (r *RedisStateRepository) InvalidateDay(ctx context.Context, date string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, dayKeyPrefix+date).Err(); err != nil {
		return fmt.Errorf("failed to delete day from redis: %w", err)
	}
	return nil
}

// CheckRateLimit counts hits in a fixed window starting at the first hit.
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	k := rateLimitKeyPrefix + key
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return count <= int64(limit), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}

package denylist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix matches the key scheme of earlier deployments so cache entries
// survive a rollout.
const keyPrefix = "auth_black_list_"

// RedisDenyList is the production DenyList backed by a shared redis
// instance, so every server replica sees a denial immediately.
type RedisDenyList struct {
	client *redis.Client
}

func NewRedisDenyList(client *redis.Client) *RedisDenyList {
	return &RedisDenyList{client: client}
}

func (d *RedisDenyList) Add(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, keyPrefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (d *RedisDenyList) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := d.client.Exists(ctx, keyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

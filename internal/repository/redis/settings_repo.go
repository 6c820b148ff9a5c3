package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// SettingsRepository stores scoped string settings in Redis hashes (settings:<scope>)
type SettingsRepository struct {
	client *redis.Client
}

// NewSettingsRepository creates a new SettingsRepository
func NewSettingsRepository(client *redis.Client) *SettingsRepository {
	return &SettingsRepository{client: client}
}

func settingsKey(scope string) string {
	return fmt.Sprintf("settings:%s", scope)
}

// Get returns the value and whether it was set
func (r *SettingsRepository) Get(ctx context.Context, scope, key string) (string, bool, error) {
	value, err := r.client.HGet(ctx, settingsKey(scope), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s/%s: %w", scope, key, err)
	}
	return value, true, nil
}

// Set stores the value
func (r *SettingsRepository) Set(ctx context.Context, scope, key, value string) error {
	if err := r.client.HSet(ctx, settingsKey(scope), key, value).Err(); err != nil {
		return fmt.Errorf("failed to set setting %s/%s: %w", scope, key, err)
	}
	return nil
}

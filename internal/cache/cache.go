/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based caching layer for frequently accessed data.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Default TTL values for different cache types
const (
	DefaultBusyWindowsTTL     = 2 * time.Minute
	DefaultPlannerSettingsTTL = 15 * time.Minute
)

// Key prefixes for Redis cache
const (
	KeyBusyWindows     = "semestra:cache:busy:"     // + user_id
	KeyPlannerSettings = "semestra:cache:settings:" // + user_id
)

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// TTL overrides
	BusyWindowsTTL     time.Duration
	PlannerSettingsTTL time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:          "localhost:6379",
		BusyWindowsTTL:     DefaultBusyWindowsTTL,
		PlannerSettingsTTL: DefaultPlannerSettingsTTL,
		DisableOnError:     true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

// delete removes a key from cache.
func (c *Cache) delete(ctx context.Context, key string) error {
	if !c.IsAvailable() {
		return nil
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.handleError(err, "delete")
		return err
	}

	return nil
}

// deletePattern deletes all keys matching a pattern.
func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// Use SCAN to find keys (safer than KEYS for production)
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// Busy window caching methods

// CachedWindow is a half-open busy interval in a user's timetable.
type CachedWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CachedBusyWindows holds the expanded busy windows for one query range.
type CachedBusyWindows struct {
	From    time.Time      `json:"from"`
	To      time.Time      `json:"to"`
	Windows []CachedWindow `json:"windows"`
}

// GetBusyWindows retrieves cached busy windows for a user. A hit requires
// the cached range to cover the requested one.
func (c *Cache) GetBusyWindows(ctx context.Context, userID string, from, to time.Time) (*CachedBusyWindows, bool) {
	var cached CachedBusyWindows
	found, err := c.get(ctx, KeyBusyWindows+userID, &cached)
	if err != nil || !found {
		return nil, false
	}
	if from.Before(cached.From) || to.After(cached.To) {
		return nil, false
	}
	c.logger.Debug().Str("user_id", userID).Int("count", len(cached.Windows)).Msg("busy windows cache hit")
	return &cached, true
}

// SetBusyWindows caches expanded busy windows for a user.
func (c *Cache) SetBusyWindows(ctx context.Context, userID string, windows *CachedBusyWindows) error {
	if !c.IsAvailable() {
		return nil
	}
	c.logger.Debug().Str("user_id", userID).Int("count", len(windows.Windows)).Msg("caching busy windows")
	return c.set(ctx, KeyBusyWindows+userID, windows, c.config.BusyWindowsTTL)
}

// InvalidateBusyWindows removes cached busy windows for a user. Called
// whenever a commitment or session of the user changes.
func (c *Cache) InvalidateBusyWindows(ctx context.Context, userID string) error {
	if !c.IsAvailable() {
		return nil
	}
	c.logger.Debug().Str("user_id", userID).Msg("invalidating busy windows cache")
	return c.delete(ctx, KeyBusyWindows+userID)
}

// Planner settings caching methods

// CachedPlannerSettings is a cached per-user planner settings record.
// It is a full snapshot of the row, primary key included, so a record
// rebuilt from cache can be saved back without losing its identity.
type CachedPlannerSettings struct {
	ID                     string    `json:"id"`
	UserID                 string    `json:"user_id"`
	WorkStartHour          int       `json:"work_start_hour"`
	WorkEndHour            int       `json:"work_end_hour"`
	DefaultSessionMinutes  int       `json:"default_session_minutes"`
	DefaultSessionsPerExam int       `json:"default_sessions_per_exam"`
	CreatedAt              time.Time `json:"created_at"`
}

// GetPlannerSettings retrieves cached planner settings for a user.
func (c *Cache) GetPlannerSettings(ctx context.Context, userID string) (*CachedPlannerSettings, bool) {
	var settings CachedPlannerSettings
	found, err := c.get(ctx, KeyPlannerSettings+userID, &settings)
	if err != nil || !found {
		return nil, false
	}
	c.logger.Debug().Str("user_id", userID).Msg("planner settings cache hit")
	return &settings, true
}

// SetPlannerSettings caches planner settings for a user.
func (c *Cache) SetPlannerSettings(ctx context.Context, settings *CachedPlannerSettings) error {
	if !c.IsAvailable() {
		return nil
	}
	c.logger.Debug().Str("user_id", settings.UserID).Msg("caching planner settings")
	return c.set(ctx, KeyPlannerSettings+settings.UserID, settings, c.config.PlannerSettingsTTL)
}

// InvalidatePlannerSettings removes cached planner settings for a user.
func (c *Cache) InvalidatePlannerSettings(ctx context.Context, userID string) error {
	if !c.IsAvailable() {
		return nil
	}
	c.logger.Debug().Str("user_id", userID).Msg("invalidating planner settings cache")
	return c.delete(ctx, KeyPlannerSettings+userID)
}

// InvalidateUser removes all caches related to a user.
func (c *Cache) InvalidateUser(ctx context.Context, userID string) error {
	if !c.IsAvailable() {
		return nil
	}
	c.logger.Debug().Str("user_id", userID).Msg("invalidating all user caches")

	if err := c.InvalidateBusyWindows(ctx, userID); err != nil {
		return err
	}

	if err := c.InvalidatePlannerSettings(ctx, userID); err != nil {
		return err
	}

	return nil
}

// FlushAll removes all cached data (use sparingly).
func (c *Cache) FlushAll(ctx context.Context) error {
	if !c.IsAvailable() {
		return nil
	}
	c.logger.Warn().Msg("flushing all cache data")
	return c.deletePattern(ctx, "semestra:cache:*")
}

/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects a single auto-schedule runner across
// replicas using a Redis lease.
package leadership

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/semestra/semestra/internal/telemetry"
)

const (
	defaultElectionKey     = "semestra:leader:autoschedule"
	defaultLeaseDuration   = 15 * time.Second
	defaultRenewalInterval = 5 * time.Second
	defaultRetryInterval   = 2 * time.Second
)

// releaseScript deletes the lease only while we still hold it, so a
// slow shutdown cannot evict a successor.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// ElectionConfig configures the lease campaign.
type ElectionConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ElectionKey holds the lease; one key per elected role.
	ElectionKey string

	// LeaseDuration is how long a held lease survives without renewal.
	LeaseDuration time.Duration

	// RenewalInterval is the holder's renewal cadence. It must be well
	// under LeaseDuration.
	RenewalInterval time.Duration

	// RetryInterval is how often followers poll for a vacated lease.
	RetryInterval time.Duration

	// InstanceID is the lease value identifying this replica.
	InstanceID string
}

func (c *ElectionConfig) applyDefaults() {
	if c.ElectionKey == "" {
		c.ElectionKey = defaultElectionKey
	}
	if c.LeaseDuration == 0 {
		c.LeaseDuration = defaultLeaseDuration
	}
	if c.RenewalInterval == 0 {
		c.RenewalInterval = defaultRenewalInterval
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = defaultRetryInterval
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.NewString()
	}
}

// Election campaigns for a Redis lease and tracks whether this replica
// currently holds it.
type Election struct {
	client *redis.Client
	logger zerolog.Logger
	cfg    ElectionConfig

	leader atomic.Bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewElection connects to Redis and prepares a campaign. The campaign
// does not run until Start.
func NewElection(cfg ElectionConfig, logger zerolog.Logger) (*Election, error) {
	cfg.applyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("leader election redis: %w", err)
	}

	return &Election{
		client: client,
		logger: logger.With().
			Str("component", "leadership").
			Str("instance_id", cfg.InstanceID).
			Logger(),
		cfg:  cfg,
		done: make(chan struct{}),
	}, nil
}

// Start launches the campaign loop. It returns immediately; the
// outcome is observable through IsLeader.
func (e *Election) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)
	e.logger.Info().Dur("lease", e.cfg.LeaseDuration).Msg("joining leader election")
	go e.campaign(ctx)
	return nil
}

// Stop ends the campaign, releases a held lease, and closes the
// Redis client.
func (e *Election) Stop() error {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}

	if e.leader.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, e.client, []string{e.cfg.ElectionKey}, e.cfg.InstanceID).Err(); err != nil {
			e.logger.Error().Err(err).Msg("failed to release leadership lease")
		}
		e.setLeader(false)
	}

	return e.client.Close()
}

// IsLeader reports whether this replica holds the lease.
func (e *Election) IsLeader() bool {
	return e.leader.Load()
}

// campaign acquires or renews the lease on a cadence that depends on
// the current role: holders renew well before the lease expires,
// followers poll for a vacated lease.
func (e *Election) campaign(ctx context.Context) {
	defer close(e.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		held, err := e.tryAcquire(ctx)
		if err != nil && ctx.Err() == nil {
			e.logger.Error().Err(err).Msg("lease acquisition failed")
		}
		e.setLeader(held && err == nil)

		if e.leader.Load() {
			timer.Reset(e.cfg.RenewalInterval)
		} else {
			timer.Reset(e.cfg.RetryInterval)
		}
	}
}

// tryAcquire takes the lease if vacant, or extends it if this replica
// already holds it.
func (e *Election) tryAcquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.cfg.ElectionKey, e.cfg.InstanceID, e.cfg.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("take lease: %w", err)
	}
	if ok {
		return true, nil
	}

	holder, err := e.client.Get(ctx, e.cfg.ElectionKey).Result()
	if err == redis.Nil {
		// Lease expired between the SETNX and the GET; next tick retries.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read lease holder: %w", err)
	}
	if holder != e.cfg.InstanceID {
		return false, nil
	}

	if err := e.client.Expire(ctx, e.cfg.ElectionKey, e.cfg.LeaseDuration).Err(); err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	return true, nil
}

// setLeader records role transitions and keeps the election gauges
// in step. Repeated calls with the same role are no-ops.
func (e *Election) setLeader(leader bool) {
	if !e.leader.CompareAndSwap(!leader, leader) {
		return
	}

	if leader {
		e.logger.Info().Msg("acquired leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(e.cfg.InstanceID).Set(1)
		telemetry.LeaderElectionChanges.WithLabelValues(e.cfg.InstanceID, "acquired").Inc()
	} else {
		e.logger.Warn().Msg("lost leadership")
		telemetry.LeaderElectionStatus.WithLabelValues(e.cfg.InstanceID).Set(0)
		telemetry.LeaderElectionChanges.WithLabelValues(e.cfg.InstanceID, "lost").Inc()
	}
}

/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestElectionConfigDefaults(t *testing.T) {
	var cfg ElectionConfig
	cfg.applyDefaults()

	if cfg.ElectionKey != defaultElectionKey {
		t.Errorf("ElectionKey = %q, want %q", cfg.ElectionKey, defaultElectionKey)
	}
	if cfg.LeaseDuration != defaultLeaseDuration {
		t.Errorf("LeaseDuration = %v, want %v", cfg.LeaseDuration, defaultLeaseDuration)
	}
	if cfg.RenewalInterval != defaultRenewalInterval {
		t.Errorf("RenewalInterval = %v, want %v", cfg.RenewalInterval, defaultRenewalInterval)
	}
	if cfg.RetryInterval != defaultRetryInterval {
		t.Errorf("RetryInterval = %v, want %v", cfg.RetryInterval, defaultRetryInterval)
	}
	if cfg.InstanceID == "" {
		t.Error("expected a generated InstanceID")
	}
	if cfg.RenewalInterval >= cfg.LeaseDuration {
		t.Errorf("renewal interval %v must be under the lease duration %v", cfg.RenewalInterval, cfg.LeaseDuration)
	}
}

func TestElectionConfigKeepsExplicitValues(t *testing.T) {
	cfg := ElectionConfig{
		ElectionKey:     "semestra:leader:test",
		LeaseDuration:   30 * time.Second,
		RenewalInterval: 10 * time.Second,
		RetryInterval:   3 * time.Second,
		InstanceID:      "replica-1",
	}
	cfg.applyDefaults()

	if cfg.ElectionKey != "semestra:leader:test" || cfg.InstanceID != "replica-1" {
		t.Fatalf("defaults overwrote explicit values: %+v", cfg)
	}
	if cfg.LeaseDuration != 30*time.Second || cfg.RenewalInterval != 10*time.Second || cfg.RetryInterval != 3*time.Second {
		t.Fatalf("defaults overwrote explicit durations: %+v", cfg)
	}
}

func TestSetLeaderTracksTransitionsOnly(t *testing.T) {
	e := &Election{
		logger: zerolog.Nop(),
		cfg:    ElectionConfig{InstanceID: "replica-1"},
	}

	if e.IsLeader() {
		t.Fatal("fresh election must not report leadership")
	}

	e.setLeader(true)
	if !e.IsLeader() {
		t.Fatal("expected leadership after acquiring")
	}

	// Renewals do not flip state.
	e.setLeader(true)
	if !e.IsLeader() {
		t.Fatal("renewal must not drop leadership")
	}

	e.setLeader(false)
	if e.IsLeader() {
		t.Fatal("expected leadership released")
	}
}

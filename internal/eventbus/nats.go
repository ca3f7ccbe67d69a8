/*
Copyright (C) 2026 Semestra Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges the in-process event bus onto NATS so that
// every instance in a multi-node deployment sees the same events.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/semestra/semestra/internal/events"
)

// subjectPrefix namespaces Semestra subjects on a shared NATS server.
const subjectPrefix = "semestra.events."

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL string

	// Connection options
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus fans events out over NATS while delivering locally through an
// in-memory bus. If the NATS server is unreachable the bus degrades to
// local-only delivery.
type NATSBus struct {
	conn   *nats.Conn
	logger zerolog.Logger
	local  *events.Bus
	nodeID string

	mu      sync.Mutex
	relayed map[events.EventType]*nats.Subscription
}

// NewNATSBus connects to NATS and returns a bridged event bus.
func NewNATSBus(cfg NATSConfig, logger zerolog.Logger) (*NATSBus, error) {
	bus := &NATSBus{
		logger:  logger.With().Str("component", "eventbus").Logger(),
		local:   events.NewBus(),
		nodeID:  generateNodeID(),
		relayed: make(map[events.EventType]*nats.Subscription),
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("semestra-"+bus.nodeID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			bus.logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			bus.logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		bus.logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS unavailable, using in-memory event bus only")
		return bus, nil
	}

	bus.conn = conn
	bus.logger.Info().Str("url", cfg.URL).Str("node_id", bus.nodeID).Msg("NATS event bus connected")
	return bus, nil
}

// Subscribe registers a subscriber for an event type. The first local
// subscriber for a type also starts relaying remote messages of that
// type into the local bus.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.local.Subscribe(eventType)

	if nb.conn == nil {
		return sub
	}

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if _, ok := nb.relayed[eventType]; ok {
		return sub
	}

	subject := subjectPrefix + string(eventType)
	natsSub, err := nb.conn.Subscribe(subject, func(msg *nats.Msg) {
		decoded, err := unmarshalNATSMessage(msg.Data)
		if err != nil {
			nb.logger.Debug().Err(err).Str("subject", msg.Subject).Msg("dropping undecodable event")
			return
		}
		// Local publishes already reached local subscribers.
		if decoded.NodeID == nb.nodeID {
			return
		}
		nb.local.Publish(decoded.EventType, decoded.Payload)
	})
	if err != nil {
		nb.logger.Warn().Err(err).Str("subject", subject).Msg("failed to subscribe on NATS, local delivery only")
		return sub
	}

	nb.relayed[eventType] = natsSub
	return sub
}

// Publish delivers the event locally and fans it out over NATS.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	if nb.conn == nil {
		return
	}

	data, err := marshalNATSMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event")
		return
	}
	if err := nb.conn.Publish(subjectPrefix+string(eventType), data); err != nil {
		nb.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("failed to publish event to NATS")
	}
}

// Unsubscribe removes a local subscriber. The NATS relay subscription
// stays up; other local subscribers of the same type may still exist.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Close drains the NATS connection.
func (nb *NATSBus) Close() error {
	nb.mu.Lock()
	for eventType, natsSub := range nb.relayed {
		if err := natsSub.Unsubscribe(); err != nil {
			nb.logger.Debug().Err(err).Str("event_type", string(eventType)).Msg("failed to unsubscribe")
		}
	}
	nb.relayed = make(map[events.EventType]*nats.Subscription)
	nb.mu.Unlock()

	if nb.conn != nil {
		return nb.conn.Drain()
	}
	return nil
}

// natsMessage represents a message published to NATS.
type natsMessage struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"` // For deduplication
}

// marshalNATSMessage converts payload to NATS message format.
func marshalNATSMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	msg := natsMessage{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	}
	return json.Marshal(msg)
}

// unmarshalNATSMessage parses a NATS message.
func unmarshalNATSMessage(data []byte) (*natsMessage, error) {
	var msg natsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	return &msg, nil
}

func generateNodeID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "node"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
}

// Package bus provides the event egress for knowledge lifecycle changes.
// It supports publish/subscribe with subject wildcards. The default
// implementation is in-memory; a NATS-backed publisher is available for
// fan-out beyond the process.
package bus

import (
	"errors"
	"time"
)

// Subjects published by the knowledge subsystem.
const (
	SubjectKnowledgeStored      = "knowledge.stored"
	SubjectKnowledgeRemoved     = "knowledge.removed"
	SubjectKnowledgeInvalidated = "knowledge.invalidated"
	SubjectEvolutionCompleted   = "evolution.completed"
	SubjectKnowledgeGap         = "knowledge.gap"
)

var (
	// ErrClosed is returned when operating on a closed bus or subscription.
	ErrClosed = errors.New("bus or subscription closed")
)

// Publisher is the write side of the bus. Publish returns immediately and
// never blocks on slow consumers.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Bus is the full pub/sub interface. Implementations must be safe for
// concurrent use.
type Bus interface {
	Publisher

	// Subscribe registers a handler for messages on the given subject.
	// Supports wildcards: "knowledge.*" matches "knowledge.stored";
	// ">" matches any remaining tokens.
	Subscribe(subject string, handler MessageHandler) (Subscription, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(msg *Message)

// Message represents an incoming message from the bus.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription represents an active subscription that can be cancelled.
type Subscription interface {
	// Unsubscribe stops receiving messages and cleans up resources.
	Unsubscribe() error

	// Subject returns the subject pattern this subscription is for.
	Subject() string
}

// Config holds configuration for creating a bus.
type Config struct {
	// URL is the NATS server URL. Ignored for the in-memory bus.
	URL string

	// Name is a client identifier for debugging/monitoring.
	Name string

	// Timeout is the connection timeout.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Name:    "memoria",
		Timeout: 30 * time.Second,
	}
}

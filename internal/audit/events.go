// Package audit provides audit event emission for session lifecycle
// operations.
//
// Purpose:
//
//	This package defines the audit event structure for sign-in, callback,
//	sign-out and virtual-user operations, with an Emitter interface backed
//	by Kafka in production and a logger for development. When no Kafka
//	brokers are configured, events are logged instead of sent to Kafka.
//
// Dependencies:
//   - github.com/google/uuid: UUID generation for event IDs
//   - github.com/rs/zerolog: structured logging for the logger emitter
//
// Key Responsibilities:
//   - Event struct defines the audit event schema
//   - Emitter interface abstracts Kafka vs logger implementations
//   - LoggerEmitter logs events as structured JSON
//   - KafkaEmitter (kafka.go) produces to the audit topic
//
// Thread Safety:
//   - Emitter implementations are safe for concurrent use
//
// Error Handling:
//   - Emit returns errors for production monitoring; LoggerEmitter never
//     fails
package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Action constants for session lifecycle events.
const (
	ActionSignIn          = "session.signin"
	ActionCallbackSuccess = "session.callback_success"
	ActionCallbackFailure = "session.callback_failure"
	ActionSignOut         = "session.signout"
	ActionVirtualSet      = "session.virtual_set"
	ActionVirtualClear    = "session.virtual_clear"
)

// Event represents a session lifecycle audit event.
type Event struct {
	EventID   uuid.UUID      `json:"event_id"`
	Action    string         `json:"action"`
	Subject   string         `json:"subject,omitempty"` // durable user id (sub claim), when known
	Tier      string         `json:"tier,omitempty"`    // mock, virtual, provider
	Resource  string         `json:"resource,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Emitter defines the interface for audit event emission.
type Emitter interface {
	// Emit sends an audit event. Returns an error if emission fails.
	Emit(ctx context.Context, event Event) error
}

// LoggerEmitter logs audit events as structured JSON. Used whenever Kafka
// brokers are not configured.
type LoggerEmitter struct {
	logger zerolog.Logger
}

// NewLoggerEmitter creates a logger-based audit emitter.
func NewLoggerEmitter(logger zerolog.Logger) *LoggerEmitter {
	return &LoggerEmitter{logger: logger.With().Str("component", "audit").Logger()}
}

// Emit logs the audit event. Never fails.
func (e *LoggerEmitter) Emit(ctx context.Context, event Event) error {
	e.logger.Info().
		Str("event_id", event.EventID.String()).
		Str("action", event.Action).
		Str("subject", event.Subject).
		Str("tier", event.Tier).
		Str("resource", event.Resource).
		Interface("metadata", event.Metadata).
		Msg("audit event")
	return nil
}

// NoopEmitter discards all events. Useful in tests.
type NoopEmitter struct{}

// Emit discards the event.
func (e *NoopEmitter) Emit(ctx context.Context, event Event) error {
	return nil
}

// BuildEvent constructs an audit event with a fresh ID and timestamp.
func BuildEvent(action, subject, tier string) Event {
	return Event{
		EventID:   uuid.New(),
		Action:    action,
		Subject:   subject,
		Tier:      tier,
		CreatedAt: time.Now().UTC(),
	}
}

// BuildEventFromRequest enriches an audit event with HTTP request metadata.
func BuildEventFromRequest(event Event, r *http.Request) Event {
	event.IPAddress = clientIP(r)
	event.UserAgent = r.Header.Get("User-Agent")
	if event.Resource == "" {
		event.Resource = r.Method + " " + r.URL.Path
	}
	return event
}

// clientIP extracts the client IP from the request, handling proxies.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

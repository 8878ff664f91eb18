// Package hooks dispatches squire lifecycle events to registered handlers.
package hooks

import (
	"context"
	"sync"

	"github.com/voidlock/squire/internal/logging"
)

// Event names.
const (
	EventTurnStarted    = "turn_started"
	EventTurnCompleted  = "turn_completed"
	EventTurnFailed     = "turn_failed"
	EventTurnRejected   = "turn_rejected"
	EventToolDenied     = "tool_denied"
	EventSessionEvicted = "session_evicted"
	EventServeStart     = "serve_start"
	EventServeStop      = "serve_stop"
)

// AllEvents lists every known hook event name.
var AllEvents = []string{
	EventTurnStarted,
	EventTurnCompleted,
	EventTurnFailed,
	EventTurnRejected,
	EventToolDenied,
	EventSessionEvicted,
	EventServeStart,
	EventServeStop,
}

// Payload carries event data to handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one hook event. Errors are logged, never fatal.
type Handler func(ctx context.Context, p Payload) error

type namedHandler struct {
	name    string
	handler Handler
}

// Manager holds hook registrations and dispatches events.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a named handler for the event.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.handlers[event][:0]
	for _, h := range m.handlers[event] {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	m.handlers[event] = kept
}

// Emit dispatches synchronously, in registration order. A nil Manager is
// a no-op so callers need not guard every emit site.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	m.mu.RLock()
	handlers := make([]namedHandler, len(m.handlers[event]))
	copy(handlers, m.handlers[event])
	m.mu.RUnlock()

	payload := Payload{Event: event, Data: data}
	for _, h := range handlers {
		if err := h.handler(ctx, payload); err != nil {
			m.log.Warn().
				Err(err).
				Str("event", event).
				Str("handler", h.name).
				Msg("hook handler error")
		}
	}
}

// Count returns how many handlers the event has.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

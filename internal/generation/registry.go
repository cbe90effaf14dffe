// Package generation tracks, per client, whether a streamed reply should
// keep going and which live connection reaches that client.
package generation

import (
	"log/slog"
	"sync"
)

// Transport is a live per-client connection that accepts JSON-encodable
// events. Implementations must be safe for concurrent Send calls.
type Transport interface {
	Send(v any) error
}

type entry struct {
	mu         sync.Mutex
	generating bool
	transport  Transport
}

// Registry maps client ids to their generation flag and transport.
// Entries are independent; the map lock is held only to find an entry.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*entry
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		clients: make(map[string]*entry),
		logger:  logger,
	}
}

func (r *Registry) lookup(clientID string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[clientID]
}

// Register adds clientID with the flag cleared. Registering an existing
// client resets its state and replaces its transport. t may be nil for
// clients that only stream over HTTP.
func (r *Registry) Register(clientID string, t Transport) {
	r.mu.Lock()
	r.clients[clientID] = &entry{transport: t}
	r.mu.Unlock()

	r.logger.Debug("client registered", "client_id", clientID, "has_transport", t != nil)
}

// Unregister removes all state for clientID.
func (r *Registry) Unregister(clientID string) {
	r.mu.Lock()
	delete(r.clients, clientID)
	r.mu.Unlock()

	r.logger.Debug("client unregistered", "client_id", clientID)
}

// Release removes clientID only while t is still its transport, so a
// closing connection cannot drop a newer registration for the same id.
func (r *Registry) Release(clientID string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.clients[clientID]
	if !ok {
		return
	}
	e.mu.Lock()
	same := e.transport == t
	e.mu.Unlock()
	if same {
		delete(r.clients, clientID)
		r.logger.Debug("client released", "client_id", clientID)
	}
}

// IsRegistered reports whether clientID has an entry.
func (r *Registry) IsRegistered(clientID string) bool {
	return r.lookup(clientID) != nil
}

// SetGenerating sets the flag. Unknown clients are ignored.
func (r *Registry) SetGenerating(clientID string, generating bool) {
	e := r.lookup(clientID)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.generating = generating
	e.mu.Unlock()
}

// ShouldStop reports whether generation for clientID must stop.
// Unknown clients always stop.
func (r *Registry) ShouldStop(clientID string) bool {
	e := r.lookup(clientID)
	if e == nil {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.generating
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast sends v to every client with a transport. Send failures are
// logged and do not stop delivery to the others.
func (r *Registry) Broadcast(v any) {
	type target struct {
		id string
		t  Transport
	}

	r.mu.RLock()
	targets := make([]target, 0, len(r.clients))
	for id, e := range r.clients {
		e.mu.Lock()
		if e.transport != nil {
			targets = append(targets, target{id, e.transport})
		}
		e.mu.Unlock()
	}
	r.mu.RUnlock()

	for _, tg := range targets {
		if err := tg.t.Send(v); err != nil {
			r.logger.Warn("broadcast failed", "client_id", tg.id, "error", err)
		}
	}
}

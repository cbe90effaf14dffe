package chat

import (
	"context"
	"sync/atomic"

	"github.com/raphaelgruber/aiaio-go/internal/generation"
)

// Monitor combines the two stop triggers for one turn: the client's
// registry flag (flipped by stop_generation) and a request-scoped
// disconnect flag.
type Monitor struct {
	registry     *generation.Registry
	clientID     string
	disconnected atomic.Bool
}

// NewMonitor creates a monitor for clientID.
func NewMonitor(registry *generation.Registry, clientID string) *Monitor {
	return &Monitor{registry: registry, clientID: clientID}
}

// Disconnect marks the streaming transport as gone and clears the
// client's flag. Safe to call any number of times.
func (m *Monitor) Disconnect() {
	m.disconnected.Store(true)
	m.registry.SetGenerating(m.clientID, false)
}

// Disconnected reports whether Disconnect was called.
func (m *Monitor) Disconnected() bool {
	return m.disconnected.Load()
}

// ShouldStop reports whether the turn must stop consuming the provider.
func (m *Monitor) ShouldStop() bool {
	return m.disconnected.Load() || m.registry.ShouldStop(m.clientID)
}

// Watch calls Disconnect when ctx is done. The returned func detaches
// the watcher.
func (m *Monitor) Watch(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, m.Disconnect)
}

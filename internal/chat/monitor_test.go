package chat_test

import (
	"context"
	"testing"
	"time"

	"github.com/raphaelgruber/aiaio-go/internal/chat"
	"github.com/raphaelgruber/aiaio-go/internal/generation"
	"github.com/stretchr/testify/assert"
)

func TestMonitorTriggers(t *testing.T) {
	reg := generation.NewRegistry(nil)
	reg.Register("c1", nil)
	reg.SetGenerating("c1", true)

	mon := chat.NewMonitor(reg, "c1")
	assert.False(t, mon.ShouldStop())

	t.Run("explicit stop", func(t *testing.T) {
		reg.SetGenerating("c1", false)
		assert.True(t, mon.ShouldStop())
		assert.False(t, mon.Disconnected())
		reg.SetGenerating("c1", true)
	})

	t.Run("disconnect", func(t *testing.T) {
		mon.Disconnect()
		mon.Disconnect()
		assert.True(t, mon.ShouldStop())
		assert.True(t, mon.Disconnected())
		assert.True(t, reg.ShouldStop("c1"), "disconnect clears the registry flag")

		reg.SetGenerating("c1", true)
		assert.True(t, mon.ShouldStop(), "disconnect is sticky for the turn")
	})
}

func TestMonitorUnknownClientStops(t *testing.T) {
	mon := chat.NewMonitor(generation.NewRegistry(nil), "ghost")
	assert.True(t, mon.ShouldStop())
	mon.Disconnect()
}

func TestMonitorWatch(t *testing.T) {
	reg := generation.NewRegistry(nil)
	reg.Register("c1", nil)
	reg.SetGenerating("c1", true)

	mon := chat.NewMonitor(reg, "c1")
	ctx, cancel := context.WithCancel(context.Background())
	stop := mon.Watch(ctx)
	defer stop()

	cancel()
	assert.Eventually(t, mon.Disconnected, time.Second, 5*time.Millisecond)

	detached := chat.NewMonitor(reg, "c1")
	ctx2, cancel2 := context.WithCancel(context.Background())
	detached.Watch(ctx2)()
	cancel2()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, detached.Disconnected(), "stopped watchers do not fire")
}

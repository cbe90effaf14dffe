package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/raphaelgruber/aiaio-go/internal/client"
	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/stretchr/testify/assert"
)

func TestPrintServerStats(t *testing.T) {
	c := metrics.NewCollector()
	c.TurnStarted()
	c.TurnEnded(metrics.TurnCompleted, 0)
	c.RecordLLMUsage(metrics.OpProviderStream, 40*time.Millisecond, 100, 20)
	c.RecordTiming(metrics.OpDBQuery, 2*time.Millisecond)

	var buf bytes.Buffer
	snap := c.Snapshot()
	printServerStats(&buf, &snap)
	out := buf.String()

	assert.Contains(t, out, "Started: 1, Completed: 1, Interrupted: 0, Failed: 0")
	assert.Contains(t, out, "Provider Stream:")
	assert.Contains(t, out, "Tokens In:  100 total, avg 100")
	assert.Contains(t, out, "Tokens Out: 20 total, avg 20")
	assert.Contains(t, out, "DB Query:")
	assert.NotContains(t, out, "Tool Calls:", "operations that never ran are omitted")
}

func TestFormatBroadcast(t *testing.T) {
	at := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	got := formatBroadcast(at, client.Broadcast{Type: "summary_updated", ConversationID: "c1", Summary: "Cells"})
	assert.Equal(t, "15:04:05 summary_updated      c1  Cells", got)
}

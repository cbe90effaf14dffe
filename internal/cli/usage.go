package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Aliases: []string{"usage"},
	Short:   "Show server runtime statistics",
	Long: `Show the server's in-memory statistics since its last restart: turn
outcomes, provider stream timings and token usage, tool calls, summaries,
embeddings and database queries.

Examples:
  aiaio stats`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.Stats(background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	printServerStats(os.Stdout, stats)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(w io.Writer, stats *metrics.Snapshot) {
	fmt.Fprintf(w, "Server Statistics (in-memory, since restart)\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", stats.UptimeSeconds)

	t := stats.Turns
	fmt.Fprintf(w, "\nTurns:\n")
	fmt.Fprintf(w, "  Started: %d, Completed: %d, Interrupted: %d, Failed: %d\n",
		t.Started, t.Completed, t.Interrupted, t.Failed)
	fmt.Fprintf(w, "  Tool rounds: %d\n", t.ToolRounds)

	sections := []struct {
		title string
		op    *metrics.OperationSnapshot
	}{
		{"Provider Stream", stats.ProviderStream},
		{"Tool Calls", stats.ToolCall},
		{"Summaries", stats.Summary},
		{"Embeddings", stats.Embedding},
		{"Vector Search", stats.VectorSearch},
		{"DB Query", stats.DBQuery},
	}
	for _, s := range sections {
		if s.op == nil {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", s.title)
		printOpStats(w, s.op)
		printTokenStats(w, s.op)
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(w io.Writer, op *metrics.OperationSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(w io.Writer, op *metrics.OperationSnapshot) {
	if op.InputTokens == nil || op.OutputTokens == nil {
		return
	}
	fmt.Fprintf(w, "  Tokens In:  %d total", *op.InputTokens)
	if op.Count > 0 {
		fmt.Fprintf(w, ", avg %.0f", float64(*op.InputTokens)/float64(op.Count))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Tokens Out: %d total", *op.OutputTokens)
	if op.Count > 0 {
		fmt.Fprintf(w, ", avg %.0f", float64(*op.OutputTokens)/float64(op.Count))
	}
	fmt.Fprintln(w)
}

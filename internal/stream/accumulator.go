package stream

import (
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/raphaelgruber/aiaio-go/internal/provider"
)

type pendingCall struct {
	id, name  *string
	arguments []byte
}

// Accumulator merges streamed tool call fragments by index. IDs and names
// overwrite; argument text appends. Not safe for concurrent use.
type Accumulator struct {
	pending map[int]*pendingCall
	logger  *slog.Logger
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator(logger *slog.Logger) *Accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{pending: make(map[int]*pendingCall), logger: logger}
}

// Feed merges one fragment.
func (a *Accumulator) Feed(f provider.ToolCallFragment) {
	p, ok := a.pending[f.Index]
	if !ok {
		p = &pendingCall{}
		a.pending[f.Index] = p
	}
	if f.ID != nil {
		p.id = f.ID
	}
	if f.Name != nil {
		p.name = f.Name
	}
	if f.Arguments != nil {
		p.arguments = append(p.arguments, *f.Arguments...)
	}
}

// Len returns the number of pending entries.
func (a *Accumulator) Len() int { return len(a.pending) }

// Drain finalizes pending calls in index order and clears the accumulator.
// Entries without an id or name are dropped. Arguments that are not a JSON
// object become an empty object.
func (a *Accumulator) Drain() []provider.ToolCall {
	indexes := make([]int, 0, len(a.pending))
	for i := range a.pending {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var calls []provider.ToolCall
	for _, i := range indexes {
		p := a.pending[i]
		if p.id == nil || *p.id == "" || p.name == nil || *p.name == "" {
			a.logger.Warn("dropping incomplete tool call",
				"index", i,
				"has_id", p.id != nil,
				"has_name", p.name != nil,
			)
			continue
		}

		args := map[string]any{}
		if len(p.arguments) > 0 {
			if err := json.Unmarshal(p.arguments, &args); err != nil || args == nil {
				a.logger.Warn("tool call arguments are not valid JSON, using {}",
					"tool", *p.name,
					"arguments", truncate(string(p.arguments), 200),
					"error", err,
				)
				args = map[string]any{}
			}
		}
		calls = append(calls, provider.ToolCall{ID: *p.id, Name: *p.name, Arguments: args})
	}

	a.pending = make(map[int]*pendingCall)
	return calls
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

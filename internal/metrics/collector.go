// Package metrics collects in-memory runtime statistics for the chat server.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpProviderStream = "provider_stream"
	OpToolCall       = "tool_call"
	OpSummary        = "summary"
	OpEmbedding      = "embedding"
	OpDBQuery        = "db_query"
	OpVectorSearch   = "vector_search"
)

// TurnOutcome is how a chat turn ended.
type TurnOutcome string

const (
	TurnCompleted   TurnOutcome = "completed"
	TurnInterrupted TurnOutcome = "interrupted"
	TurnFailed      TurnOutcome = "failed"
)

type opStats struct {
	count    int64
	total    time.Duration
	min, max time.Duration

	inTokens, outTokens int64
	hasTokens           bool
}

func (s *opStats) observe(d time.Duration) {
	if s.count == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
	s.count++
	s.total += d
}

// OperationSnapshot is the aggregated view of one operation.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Only set for operations that report token usage.
	InputTokens  *int64 `json:"input_tokens,omitempty"`
	OutputTokens *int64 `json:"output_tokens,omitempty"`
}

// TurnSnapshot counts chat turns by outcome.
type TurnSnapshot struct {
	Started     int64 `json:"started"`
	Completed   int64 `json:"completed"`
	Interrupted int64 `json:"interrupted"`
	Failed      int64 `json:"failed"`
	ToolRounds  int64 `json:"tool_rounds"`
}

// Snapshot is the full statistics at a point in time.
type Snapshot struct {
	UptimeSeconds  float64            `json:"uptime_seconds"`
	ProviderStream *OperationSnapshot `json:"provider_stream,omitempty"`
	ToolCall       *OperationSnapshot `json:"tool_call,omitempty"`
	Summary        *OperationSnapshot `json:"summary,omitempty"`
	Embedding      *OperationSnapshot `json:"embedding,omitempty"`
	DBQuery        *OperationSnapshot `json:"db_query,omitempty"`
	VectorSearch   *OperationSnapshot `json:"vector_search,omitempty"`
	Turns          TurnSnapshot       `json:"turns"`
}

// Collector aggregates runtime statistics. All methods are safe for
// concurrent use.
type Collector struct {
	mu        sync.Mutex
	startTime time.Time
	ops       map[string]*opStats
	turns     TurnSnapshot
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*opStats),
	}
}

func (c *Collector) stats(op string) *opStats {
	s, ok := c.ops[op]
	if !ok {
		s = &opStats{}
		c.ops[op] = s
	}
	return s
}

// RecordTiming records the duration of one operation.
func (c *Collector) RecordTiming(op string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats(op).observe(d)
}

// RecordLLMUsage records the duration and token usage of one model call.
func (c *Collector) RecordLLMUsage(op string, d time.Duration, inputTokens, outputTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats(op)
	s.observe(d)
	s.inTokens += inputTokens
	s.outTokens += outputTokens
	s.hasTokens = s.hasTokens || inputTokens > 0 || outputTokens > 0
}

// TurnStarted counts a chat turn entering the pipeline.
func (c *Collector) TurnStarted() {
	c.mu.Lock()
	c.turns.Started++
	c.mu.Unlock()
}

// TurnEnded counts a finished turn and the tool rounds it ran.
func (c *Collector) TurnEnded(outcome TurnOutcome, toolRounds int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch outcome {
	case TurnCompleted:
		c.turns.Completed++
	case TurnInterrupted:
		c.turns.Interrupted++
	case TurnFailed:
		c.turns.Failed++
	}
	c.turns.ToolRounds += int64(toolRounds)
}

func snapshotOp(s *opStats) *OperationSnapshot {
	if s == nil || s.count == 0 {
		return nil
	}
	snap := &OperationSnapshot{
		Count:       s.count,
		TotalTimeMs: s.total.Milliseconds(),
		AvgTimeMs:   float64(s.total.Milliseconds()) / float64(s.count),
		MinTimeMs:   s.min.Milliseconds(),
		MaxTimeMs:   s.max.Milliseconds(),
	}
	if s.hasTokens {
		in, out := s.inTokens, s.outTokens
		snap.InputTokens = &in
		snap.OutputTokens = &out
	}
	return snap
}

// Snapshot returns a point-in-time copy of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		ProviderStream: snapshotOp(c.ops[OpProviderStream]),
		ToolCall:       snapshotOp(c.ops[OpToolCall]),
		Summary:        snapshotOp(c.ops[OpSummary]),
		Embedding:      snapshotOp(c.ops[OpEmbedding]),
		DBQuery:        snapshotOp(c.ops[OpDBQuery]),
		VectorSearch:   snapshotOp(c.ops[OpVectorSearch]),
		Turns:          c.turns,
	}
}

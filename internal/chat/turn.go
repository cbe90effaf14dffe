package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/aiaio-go/internal/llm"
	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/raphaelgruber/aiaio-go/internal/provider"
	"github.com/raphaelgruber/aiaio-go/internal/stream"
)

// turn is the state of one running turn. Each state handler returns the
// next state.
type turn struct {
	o              *Orchestrator
	conversationID string
	clientID       string
	settings       models.Settings
	provider       provider.Provider
	emitter        stream.Emitter
	monitor        *Monitor
	reqCtx         context.Context
	logger         *slog.Logger

	history []models.Message
	query   string
	preface string

	persist      func(ctx context.Context, content string) error
	afterPersist func(ctx context.Context, content string)

	state    State
	messages []provider.Message
	tools    []provider.Tool
	acc      *stream.Accumulator
	pending  []provider.ToolCall

	content     strings.Builder // everything shown to the user
	segment     strings.Builder // content of the current provider call
	calls       int
	rounds      int
	images      int
	interrupted bool
	err         error
}

func (o *Orchestrator) newTurn(conversationID, clientID string, s models.Settings, p provider.Provider, em stream.Emitter) *turn {
	return &turn{
		o:              o,
		conversationID: conversationID,
		clientID:       clientID,
		settings:       s,
		provider:       p,
		emitter:        em,
		acc:            stream.NewAccumulator(o.logger),
	}
}

func (t *turn) run(ctx context.Context) {
	t.logger = t.o.logger.With("conversation_id", t.conversationID, "client_id", t.clientID)
	t.state = StateIdle

	next := t.prepare(ctx)
	for next != StateIdle {
		t.enter(next)
		switch next {
		case StateStreaming:
			next = t.stream(ctx)
		case StateToolDispatch:
			next = t.dispatch(ctx)
		case StateFinalizing:
			t.finalize(ctx)
			next = StateIdle
		}
	}
	t.enter(StateIdle)
}

func (t *turn) enter(next State) {
	if !CanTransition(t.state, next) {
		// Handlers only return legal states; reaching this is a bug.
		panic("chat: invalid transition " + t.state.String() + " -> " + next.String())
	}
	t.logger.Debug("turn state", "from", t.state.String(), "to", next.String())
	t.state = next
}

// prepare builds the wire messages and marks the client as generating.
func (t *turn) prepare(ctx context.Context) State {
	msgs, err := stream.ToWire(t.history)
	if err != nil {
		t.err = err
		return StateFinalizing
	}
	t.messages = msgs

	if t.o.tools != nil {
		tools, err := t.o.tools.Tools(ctx)
		if err != nil {
			t.logger.Warn("tool manifest unavailable", "error", err)
		}
		t.tools = tools
	}

	t.addContext(ctx)

	t.o.registry.SetGenerating(t.clientID, true)

	if t.preface != "" {
		t.emitContent(t.preface)
	}
	return StateStreaming
}

// addContext emits retrieved snippets and inserts them as a transient
// system message before the last wire message.
func (t *turn) addContext(ctx context.Context) {
	if t.o.retriever == nil || strings.TrimSpace(t.query) == "" {
		return
	}
	hits, err := t.o.retriever.Search(ctx, t.query, t.o.opts.ContextResults)
	if err != nil {
		t.logger.Warn("context retrieval failed", "error", err)
		return
	}
	if len(hits) == 0 {
		return
	}

	snippets := make([]stream.ContextSnippet, len(hits))
	var b strings.Builder
	b.WriteString("Relevant excerpts from the document library:\n")
	for i, h := range hits {
		snippets[i] = stream.ContextSnippet{Source: h.Source, Heading: h.Heading, Content: h.Content, Score: h.Score}
		b.WriteString("\n[")
		b.WriteString(h.Source)
		if h.Heading != "" {
			b.WriteString(" > ")
			b.WriteString(h.Heading)
		}
		b.WriteString("]\n")
		b.WriteString(h.Content)
		b.WriteString("\n")
	}
	t.emit(stream.Event{Type: stream.EventContext, Content: snippets})

	ctxMsg := provider.Message{Role: provider.RoleSystem, Content: b.String()}
	last := len(t.messages) - 1
	if last < 0 {
		t.messages = append(t.messages, ctxMsg)
		return
	}
	t.messages = append(t.messages[:last], ctxMsg, t.messages[last])
}

// stream consumes one provider call.
func (t *turn) stream(ctx context.Context) State {
	req := provider.Request{
		Model:       t.settings.ModelName,
		Messages:    t.messages,
		MaxTokens:   t.settings.MaxTokens,
		Temperature: t.settings.Temperature,
		TopP:        t.settings.TopP,
	}
	if t.calls == 0 || t.o.opts.ResendTools {
		req.Tools = t.tools
	}
	t.calls++
	t.segment.Reset()

	start := time.Now()
	var usage provider.Usage
	defer func() {
		t.o.metrics.RecordLLMUsage(metrics.OpProviderStream, time.Since(start), usage.InputTokens, usage.OutputTokens)
	}()

	st, err := t.provider.Stream(ctx, req)
	if err != nil {
		t.streamFailed(ctx, err)
		return StateFinalizing
	}
	defer func() { _ = st.Close() }()

	for st.Next() {
		if t.monitor.ShouldStop() {
			t.interrupted = true
			t.logger.Info("generation stopped", "disconnected", t.monitor.Disconnected())
			break
		}
		d := st.Delta()
		for _, ev := range stream.Normalize(d) {
			if ev.Type == stream.EventContent {
				t.emitContent(ev.Content.(string))
				continue
			}
			t.emit(ev)
		}
		for _, f := range d.ToolCalls {
			t.acc.Feed(f)
		}
		if d.Usage != nil {
			usage.InputTokens += d.Usage.InputTokens
			usage.OutputTokens += d.Usage.OutputTokens
		}
	}
	if err := st.Err(); err != nil && !t.interrupted {
		t.streamFailed(ctx, err)
	}

	calls := t.acc.Drain()
	if t.interrupted || t.err != nil {
		return StateFinalizing
	}
	if len(calls) > 0 {
		t.pending = calls
		return StateToolDispatch
	}
	return StateFinalizing
}

// streamFailed classifies a provider failure. Cancellation and deadline
// expiry count as interruption, not as errors.
func (t *turn) streamFailed(ctx context.Context, err error) {
	if ctx.Err() != nil {
		t.interrupted = true
		t.logger.Info("generation interrupted", "reason", context.Cause(ctx))
		return
	}
	t.err = err
	if errors.Is(llm.Classify(err), llm.ErrFatalAPI) {
		t.logger.Error("provider stream failed", "error", err)
	} else {
		t.logger.Warn("provider stream failed", "error", err)
	}
}

func (t *turn) emitContent(s string) {
	t.content.WriteString(s)
	t.segment.WriteString(s)
	t.emit(stream.Event{Type: stream.EventContent, Content: s})
}

// emit writes an event. A failed write means the client is gone.
func (t *turn) emit(ev stream.Event) {
	if t.reqCtx.Err() != nil {
		t.monitor.Disconnect()
	}
	if t.monitor.Disconnected() {
		return
	}
	if err := t.emitter.Emit(ev); err != nil {
		t.logger.Info("stream write failed, client disconnected", "error", err)
		t.monitor.Disconnect()
	}
}

// finalize persists the reply, then sends the closing events and notifies.
// Every content event precedes persistence, and done is always last.
func (t *turn) finalize(ctx context.Context) {
	content := t.content.String()
	keep := content != "" || (t.err == nil && !t.interrupted)
	if t.interrupted {
		content += InterruptedMarker
	}

	// The request context may already be cancelled by a disconnect.
	persistCtx := context.WithoutCancel(ctx)
	persisted := false
	if keep {
		if err := t.persist(persistCtx, content); err != nil {
			t.logger.Error("persist assistant message failed", "error", err)
			if t.err == nil {
				t.err = fmt.Errorf("save reply: %w", err)
			}
		} else {
			persisted = true
		}
	}
	t.o.registry.SetGenerating(t.clientID, false)

	outcome := metrics.TurnCompleted
	switch {
	case t.err != nil:
		outcome = metrics.TurnFailed
	case t.interrupted:
		outcome = metrics.TurnInterrupted
	}
	t.o.metrics.TurnEnded(outcome, t.rounds)

	if t.err != nil {
		t.emit(stream.Error(t.err))
	}
	t.emit(stream.Done())

	if !persisted {
		t.logger.Info("turn ended without a stored reply", "outcome", outcome)
		return
	}
	t.logger.Info("turn finished", "outcome", outcome, "tool_rounds", t.rounds, "chars", len(content))

	t.o.registry.Broadcast(Broadcast{Type: BroadcastMessageAdded, ConversationID: t.conversationID})

	if t.afterPersist != nil && outcome == metrics.TurnCompleted {
		t.afterPersist(persistCtx, content)
	}
}

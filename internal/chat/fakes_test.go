package chat_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/raphaelgruber/aiaio-go/internal/chat"
	"github.com/raphaelgruber/aiaio-go/internal/db"
	"github.com/raphaelgruber/aiaio-go/internal/executor"
	"github.com/raphaelgruber/aiaio-go/internal/generation"
	"github.com/raphaelgruber/aiaio-go/internal/llm"
	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/raphaelgruber/aiaio-go/internal/provider"
	"github.com/raphaelgruber/aiaio-go/internal/stream"
	"github.com/raphaelgruber/aiaio-go/internal/vectorstore"
	"github.com/stretchr/testify/require"
)

// ===== PROVIDER =====

// script is what one provider call yields.
type script struct {
	deltas []provider.Delta
	err    error
	// hang blocks after the deltas until the stream context ends.
	hang bool
}

type fakeProvider struct {
	mu       sync.Mutex
	scripts  []script
	requests []provider.Request
	openErr  error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Stream(ctx context.Context, req provider.Request) (provider.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req.Messages = slices.Clone(req.Messages)
	p.requests = append(p.requests, req)
	if p.openErr != nil {
		return nil, p.openErr
	}
	n := len(p.requests) - 1
	if n >= len(p.scripts) {
		return &fakeStream{ctx: ctx}, nil
	}
	return &fakeStream{ctx: ctx, script: p.scripts[n]}, nil
}

func (p *fakeProvider) Requests() []provider.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.requests)
}

type fakeStream struct {
	ctx    context.Context
	script script
	i      int
	cur    provider.Delta
	err    error
}

func (s *fakeStream) Next() bool {
	if s.i < len(s.script.deltas) {
		s.cur = s.script.deltas[s.i]
		s.i++
		return true
	}
	if s.script.hang {
		<-s.ctx.Done()
		s.err = s.ctx.Err()
		return false
	}
	s.err = s.script.err
	return false
}

func (s *fakeStream) Delta() provider.Delta { return s.cur }
func (s *fakeStream) Err() error            { return s.err }
func (s *fakeStream) Close() error          { return nil }

func content(s string) provider.Delta   { return provider.Delta{Content: s} }
func reasoning(s string) provider.Delta { return provider.Delta{Reasoning: s} }
func strp(s string) *string             { return &s }

func toolFragment(index int, id, name, args string) provider.Delta {
	f := provider.ToolCallFragment{Index: index}
	if id != "" {
		f.ID = strp(id)
	}
	if name != "" {
		f.Name = strp(name)
	}
	if args != "" {
		f.Arguments = strp(args)
	}
	return provider.Delta{ToolCalls: []provider.ToolCallFragment{f}}
}

// ===== TOOLS =====

type toolCall struct {
	name string
	args map[string]any
}

type fakeExecutor struct {
	mu      sync.Mutex
	calls   []toolCall
	results map[string]executor.Result
	errs    map[string]error
}

func (e *fakeExecutor) Tools(context.Context) ([]provider.Tool, error) {
	return []provider.Tool{{Name: "lookup", Description: "Look something up"}}, nil
}

func (e *fakeExecutor) Call(_ context.Context, name string, args map[string]any) (executor.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, toolCall{name, args})
	if err := e.errs[name]; err != nil {
		return executor.Result{}, err
	}
	return e.results[name], nil
}

func (e *fakeExecutor) Calls() []toolCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// ===== SUMMARIZER / RETRIEVER =====

type fakeGenerator struct {
	mu    sync.Mutex
	users []string
	out   string
	err   error
}

func (g *fakeGenerator) GenerateWithSystem(_ context.Context, _, user string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.users = append(g.users, user)
	return g.out, g.err
}

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.users)
}

type fakeRetriever struct {
	hits []vectorstore.Hit
	err  error
}

func (r *fakeRetriever) Search(context.Context, string, int) ([]vectorstore.Hit, error) {
	return r.hits, r.err
}

// failingStore rejects assistant messages and edits.
type failingStore struct {
	chat.Store
	err error
}

func (s failingStore) AppendMessage(ctx context.Context, msg db.NewMessage) (string, error) {
	if msg.Role == models.RoleAssistant {
		return "", s.err
	}
	return s.Store.AppendMessage(ctx, msg)
}

func (s failingStore) EditMessage(context.Context, string, string) (bool, error) {
	return false, s.err
}

// ===== TRANSPORTS =====

type recorder struct {
	mu     sync.Mutex
	events []stream.Event
	onEmit func(stream.Event)
	err    error
}

func (r *recorder) Emit(ev stream.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook, err := r.onEmit, r.err
	r.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
	return err
}

func (r *recorder) Events() []stream.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) Types() []string {
	var out []string
	for _, ev := range r.Events() {
		out = append(out, ev.Type)
	}
	return out
}

type sideChannel struct {
	mu   sync.Mutex
	sent []chat.Broadcast
}

func (s *sideChannel) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := v.(chat.Broadcast); ok {
		s.sent = append(s.sent, b)
	}
	return nil
}

func (s *sideChannel) OfType(typ string) []chat.Broadcast {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chat.Broadcast
	for _, b := range s.sent {
		if b.Type == typ {
			out = append(out, b)
		}
	}
	return out
}

// ===== HARNESS =====

type harness struct {
	ctx      context.Context
	store    *db.Client
	registry *generation.Registry
	provider *fakeProvider
	tools    *fakeExecutor
	summary  *fakeGenerator
	metrics  *metrics.Collector
	orch     *chat.Orchestrator
	convID   string
}

type harnessOption func(*chat.Deps, *chat.Options)

func withOptions(fn func(*chat.Options)) harnessOption {
	return func(_ *chat.Deps, o *chat.Options) { fn(o) }
}

func withRetriever(r chat.Retriever) harnessOption {
	return func(d *chat.Deps, _ *chat.Options) { d.Retriever = r }
}

func withStore(wrap func(chat.Store) chat.Store) harnessOption {
	return func(d *chat.Deps, _ *chat.Options) { d.Store = wrap(d.Store) }
}

func withoutTools() harnessOption {
	return func(d *chat.Deps, _ *chat.Options) { d.Tools = nil }
}

func newHarness(t *testing.T, scripts []script, opts ...harnessOption) *harness {
	t.Helper()
	ctx := context.Background()

	store, err := db.NewClient(ctx, db.Config{Path: filepath.Join(t.TempDir(), "chat.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema(ctx))
	require.NoError(t, store.EnsureDefaultSettings(ctx, models.DefaultSettings()))
	require.NoError(t, store.EnsurePrompts(ctx))

	h := &harness{
		ctx:      ctx,
		store:    store,
		registry: generation.NewRegistry(nil),
		provider: &fakeProvider{scripts: scripts},
		tools:    &fakeExecutor{results: map[string]executor.Result{}, errs: map[string]error{}},
		summary:  &fakeGenerator{out: "  greeting  "},
		metrics:  metrics.NewCollector(),
	}

	deps := chat.Deps{
		Store:    store,
		Registry: h.registry,
		Providers: func(context.Context, models.Settings) (provider.Provider, error) {
			return h.provider, nil
		},
		Summarizers: func(context.Context, models.Settings) (llm.Generator, error) {
			return h.summary, nil
		},
		Tools:   h.tools,
		Metrics: h.metrics,
	}
	o := chat.Options{ImagesDir: filepath.Join(t.TempDir(), "images")}
	for _, opt := range opts {
		opt(&deps, &o)
	}
	h.orch = chat.New(deps, o)

	h.convID, err = store.CreateConversation(ctx)
	require.NoError(t, err)
	return h
}

// assistantMessages returns the stored assistant contents in order.
func (h *harness) assistantMessages(t *testing.T) []string {
	t.Helper()
	history, err := h.store.History(h.ctx, h.convID)
	require.NoError(t, err)
	var out []string
	for _, m := range history {
		if m.Role == models.RoleAssistant {
			out = append(out, m.Content)
		}
	}
	return out
}

func (h *harness) turn(t *testing.T, clientID, message string, em stream.Emitter) {
	t.Helper()
	require.NoError(t, h.orch.HandleTurn(h.ctx, chat.TurnRequest{
		ConversationID: h.convID,
		ClientID:       clientID,
		Message:        message,
		SystemPrompt:   "You are helpful",
	}, em))
}

var errUpstream = errors.New("upstream exploded")

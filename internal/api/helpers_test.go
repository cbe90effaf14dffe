package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/raphaelgruber/aiaio-go/internal/api"
	"github.com/raphaelgruber/aiaio-go/internal/chat"
	"github.com/raphaelgruber/aiaio-go/internal/db"
	"github.com/raphaelgruber/aiaio-go/internal/generation"
	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/raphaelgruber/aiaio-go/internal/provider"
	"github.com/stretchr/testify/require"
)

// ===== PROVIDER =====

// fakeProvider replays one reply per Stream call, split into content
// deltas. When gate is set, the stream blocks before delta gateAt until
// the gate is closed.
type fakeProvider struct {
	mu      sync.Mutex
	replies [][]string
	calls   int
	gate    chan struct{}
	gateAt  int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Stream(ctx context.Context, _ provider.Request) (provider.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.replies) == 0 {
		return nil, errors.New("no reply scripted")
	}
	n := min(p.calls, len(p.replies)-1)
	p.calls++
	return &fakeStream{ctx: ctx, deltas: p.replies[n], gate: p.gate, gateAt: p.gateAt}, nil
}

type fakeStream struct {
	ctx    context.Context
	deltas []string
	i      int
	cur    provider.Delta
	err    error
	gate   chan struct{}
	gateAt int
}

func (s *fakeStream) Next() bool {
	if s.gate != nil && s.i == s.gateAt {
		select {
		case <-s.gate:
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			return false
		}
	}
	if s.i >= len(s.deltas) {
		return false
	}
	s.cur = provider.Delta{Content: s.deltas[s.i]}
	s.i++
	return true
}

func (s *fakeStream) Delta() provider.Delta { return s.cur }
func (s *fakeStream) Err() error            { return s.err }
func (s *fakeStream) Close() error          { return nil }

// ===== ENVIRONMENT =====

type testEnv struct {
	ctx      context.Context
	store    *db.Client
	registry *generation.Registry
	provider *fakeProvider
	metrics  *metrics.Collector
	cfg      api.Config
	srv      *httptest.Server
}

type envOption func(*api.Deps)

func withDocuments(d api.Documents) envOption {
	return func(deps *api.Deps) { deps.Documents = d }
}

func newEnv(t *testing.T, p *fakeProvider, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := db.NewClient(ctx, db.Config{Path: filepath.Join(dir, "api.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.InitSchema(ctx))
	require.NoError(t, store.EnsureDefaultSettings(ctx, models.DefaultSettings()))
	require.NoError(t, store.EnsurePrompts(ctx))

	env := &testEnv{
		ctx:      ctx,
		store:    store,
		registry: generation.NewRegistry(nil),
		provider: p,
		metrics:  metrics.NewCollector(),
		cfg: api.Config{
			UploadsDir: filepath.Join(dir, "uploads"),
			ImagesDir:  filepath.Join(dir, "images"),
		},
	}

	store.SetMetrics(env.metrics)

	orch := chat.New(chat.Deps{
		Store:    store,
		Registry: env.registry,
		Providers: func(context.Context, models.Settings) (provider.Provider, error) {
			return p, nil
		},
		Metrics: env.metrics,
	}, chat.Options{ImagesDir: env.cfg.ImagesDir})

	deps := api.Deps{
		Store:        store,
		Orchestrator: orch,
		Registry:     env.registry,
		Metrics:      env.metrics,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	env.srv = httptest.NewServer(api.New(deps, env.cfg).Handler())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) url(path string) string { return e.srv.URL + path }

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(data))
	}
	req, err := http.NewRequest(method, e.url(path), r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(e.url(path), form)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// ===== SSE =====

type sseEvent struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

func (ev sseEvent) Text() string {
	var s string
	_ = json.Unmarshal(ev.Content, &s)
	return s
}

// readEvent reads one "data: ..." frame.
func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			return ev
		}
		data, ok := strings.CutPrefix(line, "data: ")
		require.True(t, ok, "unexpected line %q", line)
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
	}
}

// readEvents reads frames until done, then drains the body. The body ends
// when the handler returns, after the reply has been persisted.
func readEvents(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	r := bufio.NewReader(body)
	var out []sseEvent
	for {
		ev := readEvent(t, r)
		out = append(out, ev)
		if ev.Type == "done" {
			_, err := io.Copy(io.Discard, r)
			require.NoError(t, err)
			return out
		}
	}
}

func contentOf(events []sseEvent) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == "content" {
			b.WriteString(ev.Text())
		}
	}
	return b.String()
}

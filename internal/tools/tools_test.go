package tools_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/aiaio-go/internal/tools"
	"github.com/raphaelgruber/aiaio-go/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger creates a logger for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type stubSearcher struct {
	hits  []vectorstore.Hit
	err   error
	query string
	k     int
}

func (s *stubSearcher) Search(_ context.Context, query string, k int) ([]vectorstore.Hit, error) {
	s.query, s.k = query, k
	return s.hits, s.err
}

// connect runs a server with deps over in-memory transports.
func connect(t *testing.T, deps *tools.Dependencies) (*mcp.ClientSession, context.Context) {
	t.Helper()

	server := mcp.NewServer(&mcp.Implementation{Name: "test-aiaio-tools", Version: "0.0.1-test"}, nil)
	tools.RegisterAll(server, deps)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	go func() { _ = server.Run(ctx, serverTransport) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err, "client should connect successfully")
	t.Cleanup(func() { _ = session.Close() })
	return session, ctx
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "first content should be text")
	return text.Text
}

func toolNames(t *testing.T, session *mcp.ClientSession, ctx context.Context) []string {
	t.Helper()
	res, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func TestRegisterAllDependsOnServices(t *testing.T) {
	t.Run("ping only", func(t *testing.T) {
		session, ctx := connect(t, &tools.Dependencies{Logger: testLogger()})
		assert.ElementsMatch(t, []string{"ping"}, toolNames(t, session, ctx))
	})

	t.Run("all tools", func(t *testing.T) {
		session, ctx := connect(t, &tools.Dependencies{
			Documents: &stubSearcher{},
			Predictor: tools.NewPredictor("http://127.0.0.1:1", nil),
			Logger:    testLogger(),
		})
		assert.ElementsMatch(t, []string{"ping", "search_documents", "simulate_solar_cell"}, toolNames(t, session, ctx))
	})
}

func TestPingTool(t *testing.T) {
	session, ctx := connect(t, &tools.Dependencies{Logger: testLogger()})

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"no input", map[string]any{}, "pong"},
		{"echo", map[string]any{"echo": "hello"}, "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "ping", Arguments: tt.args})
			require.NoError(t, err)
			assert.False(t, res.IsError)
			assert.Equal(t, tt.want, textOf(t, res))
		})
	}
}

func TestSearchDocumentsTool(t *testing.T) {
	searcher := &stubSearcher{hits: []vectorstore.Hit{
		{ID: "guide.md#0", Source: "guide.md", Heading: "Setup", Content: "Install the thing.", Score: 0.9},
	}}
	session, ctx := connect(t, &tools.Dependencies{Documents: searcher, Logger: testLogger()})

	t.Run("returns hits", func(t *testing.T) {
		res, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "search_documents",
			Arguments: map[string]any{"query": "install"},
		})
		require.NoError(t, err)
		require.False(t, res.IsError)

		var out tools.SearchOutput
		require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &out))
		assert.Equal(t, 1, out.Count)
		assert.Equal(t, "guide.md", out.Hits[0].Source)
		assert.Equal(t, "install", searcher.query)
		assert.Equal(t, 5, searcher.k, "default limit")
	})

	t.Run("validation", func(t *testing.T) {
		tests := []struct {
			name string
			args map[string]any
			want string
		}{
			{"empty query", map[string]any{"query": ""}, "Query cannot be empty"},
			{"limit too high", map[string]any{"query": "x", "limit": 50}, "Limit must be 1-20"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "search_documents", Arguments: tt.args})
				require.NoError(t, err)
				assert.True(t, res.IsError)
				assert.Contains(t, textOf(t, res), tt.want)
			})
		}
	})
}

func TestSimulateSolarCellTool(t *testing.T) {
	var got map[string]float64
	predictor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/solar/predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"predictions":{"Vm":0.62,"Im":40.1,"Voc":0.71,"Jsc":42.3,"FF":82.8,"Eff":24.9}}`))
	}))
	defer predictor.Close()

	session, ctx := connect(t, &tools.Dependencies{
		Predictor: tools.NewPredictor(predictor.URL, testLogger()),
		Logger:    testLogger(),
	})

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "simulate_solar_cell",
		Arguments: map[string]any{"Si_thk": 150},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, textOf(t, res))
	require.Len(t, res.Content, 2)

	assert.Equal(t, 150.0, got["Si_thk"])
	assert.Equal(t, 1.4, got["t_SiO2"], "omitted parameters use defaults")
	assert.Equal(t, 1e20, got["Nd_top"])

	assert.Contains(t, textOf(t, res), `"Eff": 24.9`)
	img, ok := res.Content[1].(*mcp.ImageContent)
	require.True(t, ok, "second content should be an image")
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, []byte("\x89PNG"), img.Data[:4])
}

func TestSimulateSolarCellPredictorDown(t *testing.T) {
	predictor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer predictor.Close()

	session, ctx := connect(t, &tools.Dependencies{
		Predictor: tools.NewPredictor(predictor.URL, testLogger()),
		Logger:    testLogger(),
	})

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: "simulate_solar_cell", Arguments: map[string]any{}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "model not loaded")
}

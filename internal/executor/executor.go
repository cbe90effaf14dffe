// Package executor runs model-requested tools through an MCP client session.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/raphaelgruber/aiaio-go/internal/provider"
)

// Transport kinds accepted by NewTransport.
const (
	TransportInProcess  = "inprocess"
	TransportCommand    = "command"
	TransportStreamable = "streamable"
	TransportSSE        = "sse"
	TransportNone       = "none"
)

// ErrUnknownTransport is returned for an unsupported transport kind.
var ErrUnknownTransport = errors.New("unknown tool transport")

// Image is one image returned by a tool.
type Image struct {
	Data     []byte
	MIMEType string
}

// Result is the string-shaped outcome of a tool call. IsError marks a
// result the tool itself reported as failed; its Text still goes back to
// the model.
type Result struct {
	Text    string
	Images  []Image
	IsError bool
}

// Executor discovers and invokes tools.
type Executor interface {
	Tools(ctx context.Context) ([]provider.Tool, error)
	Call(ctx context.Context, name string, args map[string]any) (Result, error)
}

// MCP is an Executor backed by one MCP client session.
type MCP struct {
	session *mcp.ClientSession
	logger  *slog.Logger

	mu    sync.Mutex
	tools []provider.Tool
}

// NewTransport builds a client transport for the configured kind.
// In-process transports are created by InProcess instead.
func NewTransport(kind, endpoint, command string) (mcp.Transport, error) {
	switch kind {
	case TransportStreamable:
		if endpoint == "" {
			return nil, errors.New("streamable transport requires an endpoint")
		}
		return &mcp.StreamableClientTransport{Endpoint: endpoint}, nil
	case TransportSSE:
		if endpoint == "" {
			return nil, errors.New("sse transport requires an endpoint")
		}
		return &mcp.SSEClientTransport{Endpoint: endpoint}, nil
	case TransportCommand:
		args := strings.Fields(command)
		if len(args) == 0 {
			return nil, errors.New("command transport requires a command")
		}
		return &mcp.CommandTransport{Command: exec.Command(args[0], args[1:]...)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, kind)
	}
}

// Connect opens a client session over transport.
func Connect(ctx context.Context, transport mcp.Transport, version string, logger *slog.Logger) (*MCP, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "aiaio-server", Version: version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect tool server: %w", err)
	}
	return &MCP{session: session, logger: logger}, nil
}

// InProcess runs server on in-memory transports and connects to it. The
// server stops when ctx is cancelled or the executor is closed.
func InProcess(ctx context.Context, server *mcp.Server, version string, logger *slog.Logger) (*MCP, error) {
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		return nil, fmt.Errorf("start in-process tool server: %w", err)
	}
	ex, err := Connect(ctx, clientTransport, version, logger)
	if err != nil {
		_ = serverSession.Close()
		return nil, err
	}
	return ex, nil
}

// Close ends the session.
func (m *MCP) Close() error {
	return m.session.Close()
}

// Tools lists the server's tools as provider tool specs. The manifest is
// fetched once and cached.
func (m *MCP) Tools(ctx context.Context) ([]provider.Tool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tools != nil {
		return m.tools, nil
	}

	var out []provider.Tool
	var cursor string
	for {
		res, err := m.session.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		for _, t := range res.Tools {
			tool, err := toProviderTool(t)
			if err != nil {
				return nil, err
			}
			out = append(out, tool)
		}
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	m.logger.Debug("tool manifest loaded", "count", len(out))
	m.tools = out
	return out, nil
}

func toProviderTool(t *mcp.Tool) (provider.Tool, error) {
	tool := provider.Tool{Name: t.Name, Description: t.Description}
	if t.InputSchema != nil {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return provider.Tool{}, fmt.Errorf("marshal schema for %s: %w", t.Name, err)
		}
		tool.Parameters = schema
	}
	return tool, nil
}

// Call invokes a tool. Transport and protocol failures are returned as
// errors; failures reported by the tool come back with IsError set.
func (m *MCP) Call(ctx context.Context, name string, args map[string]any) (Result, error) {
	if args == nil {
		args = map[string]any{}
	}
	res, err := m.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return Result{}, fmt.Errorf("call tool %s: %w", name, err)
	}
	return toResult(res), nil
}

func toResult(res *mcp.CallToolResult) Result {
	out := Result{IsError: res.IsError}
	var texts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case *mcp.TextContent:
			texts = append(texts, v.Text)
		case *mcp.ImageContent:
			out.Images = append(out.Images, Image{Data: v.Data, MIMEType: v.MIMEType})
		}
	}
	out.Text = strings.Join(texts, "\n")
	return out
}

package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/raphaelgruber/aiaio-go/internal/executor"
	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/raphaelgruber/aiaio-go/internal/provider"
	"github.com/raphaelgruber/aiaio-go/internal/stream"
	"golang.org/x/sync/errgroup"
)

const maxToolArgLogLen = 200

// dispatch runs the drained tool calls and appends the assistant
// tool-call message plus one result message per call.
func (t *turn) dispatch(ctx context.Context) State {
	calls := t.pending
	t.pending = nil

	if t.rounds >= t.o.opts.MaxToolRounds {
		t.logger.Warn("max tool rounds reached, finalizing", "rounds", t.rounds, "requested", len(calls))
		return StateFinalizing
	}
	t.rounds++

	t.messages = append(t.messages, provider.Message{
		Role:      provider.RoleAssistant,
		Content:   t.segment.String(),
		ToolCalls: calls,
	})

	results := make([]executor.Result, len(calls))
	var g errgroup.Group
	g.SetLimit(t.o.opts.ToolConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = t.callTool(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	for i, call := range calls {
		res := results[i]
		text := res.Text
		for _, img := range res.Images {
			t.saveImage(call.Name, img)
		}
		if text == "" && len(res.Images) > 0 {
			text = fmt.Sprintf("Generated %d image(s).", len(res.Images))
		}

		t.emit(stream.Event{Type: stream.EventToolContext, Content: stream.ToolContext{
			ToolName:  call.Name,
			Arguments: call.Arguments,
			Result:    text,
		}})
		t.messages = append(t.messages, provider.Message{
			Role:       provider.RoleTool,
			Content:    text,
			ToolCallID: call.ID,
		})
	}

	if t.monitor.ShouldStop() || ctx.Err() != nil {
		t.interrupted = true
		t.logger.Info("generation stopped during tool dispatch")
		return StateFinalizing
	}
	return StateStreaming
}

// callTool runs one tool. Failures become result text for the model.
func (t *turn) callTool(ctx context.Context, call provider.ToolCall) executor.Result {
	args, _ := json.Marshal(call.Arguments)
	logger := t.logger.With("tool", call.Name, "call_id", call.ID)
	logger.Info("calling tool", "args", truncate(string(args), maxToolArgLogLen))

	if t.o.tools == nil {
		return executor.Result{Text: "Error: no tool executor is configured", IsError: true}
	}

	start := time.Now()
	res, err := t.o.tools.Call(ctx, call.Name, call.Arguments)
	t.o.metrics.RecordTiming(metrics.OpToolCall, time.Since(start))
	if err != nil {
		logger.Warn("tool call failed", "error", err)
		return executor.Result{Text: fmt.Sprintf("Error executing tool %s: %v", call.Name, err), IsError: true}
	}
	if res.IsError {
		logger.Warn("tool reported error", "result", truncate(res.Text, maxToolArgLogLen))
	}
	return res
}

// saveImage writes a tool image under the images dir and emits an image
// event pointing at its served URL.
func (t *turn) saveImage(tool string, img executor.Image) {
	format := imageFormat(img.MIMEType)
	name := fmt.Sprintf("%s_%s.%s", safeName(tool), shortuuid.New(), format)
	path := filepath.Join(t.o.opts.ImagesDir, name)

	if err := os.MkdirAll(t.o.opts.ImagesDir, 0o755); err != nil {
		t.logger.Warn("create images dir failed", "error", err)
		return
	}
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		t.logger.Warn("save tool image failed", "path", path, "error", err)
		return
	}

	t.emit(stream.Event{Type: stream.EventImage, Content: stream.ImageContent{
		ToolName:   tool,
		SourcePath: path,
		URLPath:    "/images/" + name,
		ImageIndex: t.images,
		Format:     format,
	}})
	t.images++
}

func imageFormat(mime string) string {
	_, sub, ok := strings.Cut(mime, "/")
	if !ok || sub == "" {
		return "png"
	}
	sub, _, _ = strings.Cut(sub, "+")
	if sub == "jpeg" {
		return "jpg"
	}
	return sub
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

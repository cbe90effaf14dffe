// Package tools provides the MCP tool handlers bundled with aiaio.
package tools

import (
	"context"
	"log/slog"

	"github.com/raphaelgruber/aiaio-go/internal/vectorstore"
)

// DocumentSearcher finds indexed document chunks.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, k int) ([]vectorstore.Hit, error)
}

// Dependencies holds shared services for tool handlers.
// Nil services disable the tools that need them.
type Dependencies struct {
	Documents DocumentSearcher
	Predictor *Predictor
	Logger    *slog.Logger
}

func (d *Dependencies) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

package provider

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/aiaio-go/internal/models"
)

// Factory builds a provider for a settings row.
type Factory func(ctx context.Context, s models.Settings) (Provider, error)

// NewFactory returns the default Factory. region is used for Bedrock.
func NewFactory(region string, logger *slog.Logger) Factory {
	return func(ctx context.Context, s models.Settings) (Provider, error) {
		return New(ctx, s, region, logger)
	}
}

// New returns the adapter named by s.Provider.
func New(ctx context.Context, s models.Settings, region string, logger *slog.Logger) (Provider, error) {
	switch s.Provider {
	case "", models.ProviderOpenAI:
		return NewOpenAI(s.Host, s.EffectiveAPIKey(), logger), nil
	case models.ProviderBedrock:
		return NewBedrock(ctx, region, logger)
	default:
		return nil, fmt.Errorf("unknown provider %q", s.Provider)
	}
}

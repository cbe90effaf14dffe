package db

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/raphaelgruber/aiaio-go/internal/models"
	"gopkg.in/yaml.v3"
)

// SeedFile describes settings and prompts to load at startup.
//
//	settings:
//	  - name: local
//	    host: http://localhost:11434/v1
//	    model_name: qwen2.5:7b
//	    default: true
//	prompts:
//	  - name: solar
//	    text: You are a solar cell simulation assistant.
//	    active: true
type SeedFile struct {
	Settings []SeedSettings `yaml:"settings"`
	Prompts  []SeedPrompt   `yaml:"prompts"`
}

// SeedSettings is one settings entry in a seed file.
type SeedSettings struct {
	Name        string   `yaml:"name"`
	Provider    string   `yaml:"provider"`
	Host        string   `yaml:"host"`
	ModelName   string   `yaml:"model_name"`
	APIKey      string   `yaml:"api_key"`
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int     `yaml:"max_tokens"`
	TopP        *float64 `yaml:"top_p"`
	Default     bool     `yaml:"default"`
}

// SeedPrompt is one prompt entry in a seed file.
type SeedPrompt struct {
	Name   string `yaml:"name"`
	Text   string `yaml:"text"`
	Active bool   `yaml:"active"`
}

// ParseSeed decodes seed YAML.
func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &seed, nil
}

// SeedFromFile applies a seed file. Settings are upserted by name; prompts
// that already exist keep their text.
func (c *Client) SeedFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return err
	}
	return c.Seed(ctx, seed)
}

// Seed applies parsed seed data.
func (c *Client) Seed(ctx context.Context, seed *SeedFile) error {
	for _, ss := range seed.Settings {
		s := models.DefaultSettings()
		s.Name = ss.Name
		s.IsDefault = ss.Default
		if ss.Provider != "" {
			s.Provider = ss.Provider
		}
		if ss.Host != "" {
			s.Host = ss.Host
		}
		if ss.ModelName != "" {
			s.ModelName = ss.ModelName
		}
		s.APIKey = ss.APIKey
		if ss.Temperature != nil {
			s.Temperature = *ss.Temperature
		}
		if ss.MaxTokens != nil {
			s.MaxTokens = *ss.MaxTokens
		}
		if ss.TopP != nil {
			s.TopP = *ss.TopP
		}
		if _, err := c.SaveSettings(ctx, s); err != nil {
			return fmt.Errorf("seed settings %s: %w", ss.Name, err)
		}
	}

	for _, sp := range seed.Prompts {
		id, err := c.CreatePrompt(ctx, sp.Name, sp.Text)
		if errors.Is(err, ErrConflict) {
			existing, getErr := c.GetPromptByName(ctx, sp.Name)
			if getErr != nil {
				return getErr
			}
			id, err = existing.ID, nil
		}
		if err != nil {
			return fmt.Errorf("seed prompt %s: %w", sp.Name, err)
		}
		if sp.Active {
			if err := c.ActivatePrompt(ctx, id); err != nil {
				return err
			}
		}
	}

	c.logger.Info("seed applied", "settings", len(seed.Settings), "prompts", len(seed.Prompts))
	return nil
}

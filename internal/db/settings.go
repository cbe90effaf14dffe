package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/aiaio-go/internal/models"
)

const settingsColumns = `id, name, is_default, provider, host, model_name, api_key,
	temperature, max_tokens, top_p, created_at, updated_at`

func scanSettings(row interface{ Scan(...any) error }) (models.Settings, error) {
	var s models.Settings
	err := row.Scan(&s.ID, &s.Name, &s.IsDefault, &s.Provider, &s.Host, &s.ModelName, &s.APIKey,
		&s.Temperature, &s.MaxTokens, &s.TopP, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// DefaultSettings returns the settings row that drives chat turns.
func (c *Client) DefaultSettings(ctx context.Context) (*models.Settings, error) {
	defer c.observe(time.Now())

	s, err := scanSettings(c.db.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM settings WHERE is_default = 1 LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no default settings", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get default settings: %w", err)
	}
	return &s, nil
}

// GetSettings returns a settings row by id.
func (c *Client) GetSettings(ctx context.Context, id int64) (*models.Settings, error) {
	defer c.observe(time.Now())

	s, err := scanSettings(c.db.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM settings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: settings %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &s, nil
}

// ListSettings returns all settings rows ordered by name.
func (c *Client) ListSettings(ctx context.Context) ([]models.Settings, error) {
	defer c.observe(time.Now())

	rows, err := c.db.QueryContext(ctx, `SELECT `+settingsColumns+` FROM settings ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	out := []models.Settings{}
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settings: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveSettings inserts a settings row or updates the one with the same name.
// When s.IsDefault is set, every other row loses its default flag.
func (c *Client) SaveSettings(ctx context.Context, s models.Settings) (int64, error) {
	defer c.observe(time.Now())

	if s.Name == "" {
		return 0, fmt.Errorf("%w: settings name required", ErrInvalidInput)
	}
	if s.Provider == "" {
		s.Provider = models.ProviderOpenAI
	}
	if s.Provider != models.ProviderOpenAI && s.Provider != models.ProviderBedrock {
		return 0, fmt.Errorf("%w: provider %q", ErrInvalidInput, s.Provider)
	}

	ts := c.now()
	var id int64
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		if s.IsDefault {
			if _, err := tx.ExecContext(ctx, `UPDATE settings SET is_default = 0`); err != nil {
				return fmt.Errorf("clear default: %w", err)
			}
		}
		err := tx.QueryRowContext(ctx, `
			INSERT INTO settings (name, is_default, provider, host, model_name, api_key,
			                      temperature, max_tokens, top_p, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				is_default = excluded.is_default OR settings.is_default,
				provider = excluded.provider,
				host = excluded.host,
				model_name = excluded.model_name,
				api_key = excluded.api_key,
				temperature = excluded.temperature,
				max_tokens = excluded.max_tokens,
				top_p = excluded.top_p,
				updated_at = excluded.updated_at
			RETURNING id`,
			s.Name, s.IsDefault, s.Provider, s.Host, s.ModelName, s.APIKey,
			s.Temperature, s.MaxTokens, s.TopP, ts, ts).Scan(&id)
		if err != nil {
			return fmt.Errorf("save settings: %w", wrapQueryError(err))
		}
		return nil
	})
	return id, err
}

// SetDefaultSettings makes id the only default row.
func (c *Client) SetDefaultSettings(ctx context.Context, id int64) error {
	defer c.observe(time.Now())

	return c.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM settings WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: settings %d", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("lookup settings: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE settings SET is_default = (id = ?)`, id); err != nil {
			return fmt.Errorf("set default: %w", err)
		}
		return nil
	})
}

// DeleteSettings removes a non-default settings row.
func (c *Client) DeleteSettings(ctx context.Context, id int64) error {
	s, err := c.GetSettings(ctx, id)
	if err != nil {
		return err
	}
	if s.IsDefault {
		return fmt.Errorf("%w: cannot delete the default settings", ErrPermissionDenied)
	}

	defer c.observe(time.Now())
	if _, err := c.db.ExecContext(ctx, `DELETE FROM settings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}

// EnsureDefaultSettings inserts s as the default row when none exists.
func (c *Client) EnsureDefaultSettings(ctx context.Context, s models.Settings) error {
	_, err := c.DefaultSettings(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	s.IsDefault = true
	if _, err := c.SaveSettings(ctx, s); err != nil {
		return err
	}
	c.logger.Info("default settings created", "name", s.Name, "host", s.Host, "model", s.ModelName)
	return nil
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/aiaio-go/internal/models"
)

const promptColumns = `id, prompt_name, prompt_text, is_active, created_at, updated_at`

func scanPrompt(row interface{ Scan(...any) error }) (models.SystemPrompt, error) {
	var p models.SystemPrompt
	err := row.Scan(&p.ID, &p.Name, &p.Text, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (c *Client) getPrompt(ctx context.Context, where string, arg any) (*models.SystemPrompt, error) {
	defer c.observe(time.Now())

	p, err := scanPrompt(c.db.QueryRowContext(ctx,
		`SELECT `+promptColumns+` FROM system_prompts WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: prompt %v", ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt: %w", err)
	}
	return &p, nil
}

// GetPrompt returns a prompt by id.
func (c *Client) GetPrompt(ctx context.Context, id int64) (*models.SystemPrompt, error) {
	return c.getPrompt(ctx, "id = ?", id)
}

// GetPromptByName returns a prompt by its unique name.
func (c *Client) GetPromptByName(ctx context.Context, name string) (*models.SystemPrompt, error) {
	return c.getPrompt(ctx, "prompt_name = ?", name)
}

// ListPrompts returns all prompts ordered by name.
func (c *Client) ListPrompts(ctx context.Context) ([]models.SystemPrompt, error) {
	defer c.observe(time.Now())

	rows, err := c.db.QueryContext(ctx, `SELECT `+promptColumns+` FROM system_prompts ORDER BY prompt_name`)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	out := []models.SystemPrompt{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePrompt inserts an inactive prompt. Names are unique (ErrConflict).
func (c *Client) CreatePrompt(ctx context.Context, name, text string) (int64, error) {
	defer c.observe(time.Now())

	if name == "" {
		return 0, fmt.Errorf("%w: prompt name required", ErrInvalidInput)
	}
	ts := c.now()
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO system_prompts (prompt_name, prompt_text, is_active, created_at, updated_at)
		 VALUES (?, ?, 0, ?, ?)`, name, text, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("create prompt: %w", wrapQueryError(err))
	}
	return res.LastInsertId()
}

// UpdatePrompt changes a prompt's name and text.
func (c *Client) UpdatePrompt(ctx context.Context, id int64, name, text string) error {
	defer c.observe(time.Now())

	res, err := c.db.ExecContext(ctx,
		`UPDATE system_prompts SET prompt_name = ?, prompt_text = ?, updated_at = ? WHERE id = ?`,
		name, text, c.now(), id)
	if err != nil {
		return fmt.Errorf("update prompt: %w", wrapQueryError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: prompt %d", ErrNotFound, id)
	}
	return nil
}

// DeletePrompt removes a prompt. The built-in default prompt cannot be deleted.
func (c *Client) DeletePrompt(ctx context.Context, id int64) error {
	p, err := c.GetPrompt(ctx, id)
	if err != nil {
		return err
	}
	if p.Name == models.PromptDefault {
		return fmt.Errorf("%w: cannot delete the default prompt", ErrPermissionDenied)
	}

	defer c.observe(time.Now())
	if _, err := c.db.ExecContext(ctx, `DELETE FROM system_prompts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete prompt: %w", err)
	}
	return nil
}

// ActivatePrompt makes id the only active prompt.
func (c *Client) ActivatePrompt(ctx context.Context, id int64) error {
	defer c.observe(time.Now())

	return c.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM system_prompts WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: prompt %d", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("lookup prompt: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE system_prompts SET is_active = (id = ?)`, id); err != nil {
			return fmt.Errorf("activate prompt: %w", err)
		}
		return nil
	})
}

// ActivePrompt returns the active prompt. When none is active the default
// prompt is activated and returned.
func (c *Client) ActivePrompt(ctx context.Context) (*models.SystemPrompt, error) {
	p, err := c.getPrompt(ctx, "is_active = ?", 1)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	def, err := c.GetPromptByName(ctx, models.PromptDefault)
	if err != nil {
		return nil, fmt.Errorf("no active or default prompt: %w", err)
	}
	if err := c.ActivatePrompt(ctx, def.ID); err != nil {
		return nil, err
	}
	def.IsActive = true
	return def, nil
}

// EnsurePrompts seeds the built-in prompts when they are missing.
func (c *Client) EnsurePrompts(ctx context.Context) error {
	builtin := []struct{ name, text string }{
		{models.PromptDefault, models.DefaultSystemPrompt},
		{models.PromptSummary, models.SummaryPrompt},
	}
	ts := c.now()
	for _, p := range builtin {
		if _, err := c.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO system_prompts (prompt_name, prompt_text, is_active, created_at, updated_at)
			 VALUES (?, ?, 0, ?, ?)`, p.name, p.text, ts, ts); err != nil {
			return fmt.Errorf("seed prompt %s: %w", p.name, err)
		}
	}
	return nil
}

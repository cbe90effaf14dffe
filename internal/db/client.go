// Package db provides SQLite persistence for conversations, messages,
// attachments, LLM settings and system prompts.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/raphaelgruber/aiaio-go/internal/models"
	_ "modernc.org/sqlite"
)

// Config holds SQLite connection configuration.
type Config struct {
	Path string
}

// Client wraps the SQLite connection pool.
type Client struct {
	db      *sql.DB
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Collector

	mu     sync.Mutex
	lastTS float64
}

// NewClient opens (creating if needed) the database file.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.Path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	// One writer at a time; readers queue behind open transactions.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	log.Info("sqlite database opened", "path", cfg.Path)
	return &Client{db: sqlDB, cfg: cfg, logger: log}, nil
}

// SetMetrics enables query timing collection.
func (c *Client) SetMetrics(m *metrics.Collector) {
	c.metrics = m
}

// Close closes the database.
func (c *Client) Close() error {
	c.logger.Info("closing sqlite database")
	return c.db.Close()
}

// DB returns the underlying handle.
func (c *Client) DB() *sql.DB {
	return c.db
}

// InitSchema creates tables and indexes if they don't exist.
func (c *Client) InitSchema(ctx context.Context) error {
	c.logger.Info("initializing database schema")
	if _, err := c.db.ExecContext(ctx, SchemaSQL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	c.logger.Info("schema initialization complete")
	return nil
}

// WipeData deletes all conversation data while keeping settings and prompts.
// Use for testing only.
func (c *Client) WipeData(ctx context.Context) error {
	c.logger.Warn("wiping all conversation data from database")

	// Children first.
	tables := []string{"attachments", "messages", "conversations"}

	for _, table := range tables {
		if _, err := c.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
		c.logger.Info("deleted table data", "table", table)
	}

	c.logger.Info("database wipe complete")
	return nil
}

// now returns a strictly increasing epoch timestamp so messages appended
// in quick succession keep a total order by created_at.
func (c *Client) now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := models.EpochSeconds(time.Now())
	if ts <= c.lastTS {
		ts = c.lastTS + 1e-6
	}
	c.lastTS = ts
	return ts
}

// observe records a query timing when metrics are enabled.
func (c *Client) observe(start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordTiming(metrics.OpDBQuery, time.Since(start))
	}
}

// inTx runs fn inside a transaction, committing on success.
func (c *Client) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

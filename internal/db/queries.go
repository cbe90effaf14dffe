package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/aiaio-go/internal/models"
)

// NewMessage is the input to AppendMessage.
type NewMessage struct {
	ConversationID string
	Role           models.Role
	ContentType    models.ContentType // defaults to text
	Content        string
	Attachments    []models.NewAttachment
}

// CreateConversation inserts a conversation with fresh timestamps and no summary.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	defer c.observe(time.Now())

	id := uuid.NewString()
	ts := c.now()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO conversations (id, created_at, last_updated) VALUES (?, ?, ?)`,
		id, ts, ts)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	c.logger.Debug("conversation created", "conversation_id", id)
	return id, nil
}

// GetConversation returns a conversation by id.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	defer c.observe(time.Now())

	var conv models.Conversation
	var summary sql.NullString
	err := c.db.QueryRowContext(ctx,
		`SELECT id, created_at, last_updated, summary FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.CreatedAt, &conv.LastUpdated, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if summary.Valid {
		conv.Summary = &summary.String
	}
	return &conv, nil
}

// ListConversations returns all conversations, most recently updated first.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	defer c.observe(time.Now())

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, created_at, last_updated, summary FROM conversations ORDER BY last_updated DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	convs := []models.Conversation{}
	for rows.Next() {
		var conv models.Conversation
		var summary sql.NullString
		if err := rows.Scan(&conv.ID, &conv.CreatedAt, &conv.LastUpdated, &summary); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if summary.Valid {
			conv.Summary = &summary.String
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// UpdateSummary replaces a conversation's summary.
func (c *Client) UpdateSummary(ctx context.Context, conversationID, summary string) error {
	defer c.observe(time.Now())

	res, err := c.db.ExecContext(ctx,
		`UPDATE conversations SET summary = ? WHERE id = ?`, summary, conversationID)
	if err != nil {
		return fmt.Errorf("update summary: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}
	return nil
}

// AppendMessage inserts a message, its attachments and the conversation's
// last_updated bump in one transaction.
func (c *Client) AppendMessage(ctx context.Context, msg NewMessage) (string, error) {
	defer c.observe(time.Now())

	if !msg.Role.Valid() {
		return "", fmt.Errorf("%w: role %q", ErrInvalidInput, msg.Role)
	}
	if msg.ContentType == "" {
		msg.ContentType = models.ContentText
	}
	if !msg.ContentType.Valid() {
		return "", fmt.Errorf("%w: content type %q", ErrInvalidInput, msg.ContentType)
	}

	id := uuid.NewString()
	ts := c.now()

	err := c.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE conversations SET last_updated = ? WHERE id = ?`, ts, msg.ConversationID)
		if err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: conversation %s", ErrNotFound, msg.ConversationID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, role, content_type, content, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, msg.ConversationID, string(msg.Role), string(msg.ContentType), msg.Content, ts); err != nil {
			return fmt.Errorf("insert message: %w", wrapQueryError(err))
		}

		for _, att := range msg.Attachments {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO attachments (id, message_id, file_name, file_path, file_type, file_size, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), id, att.FileName, att.FilePath, att.FileType, att.FileSize, ts); err != nil {
				return fmt.Errorf("insert attachment: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("message appended",
		"conversation_id", msg.ConversationID,
		"message_id", id,
		"role", msg.Role,
		"attachments", len(msg.Attachments),
	)
	return id, nil
}

const historySelect = `
SELECT m.id, m.conversation_id, m.role, m.content_type, m.content, m.created_at, m.updated_at,
       a.id, a.file_name, a.file_path, a.file_type, a.file_size
FROM messages m
LEFT JOIN attachments a ON a.message_id = m.id
WHERE m.conversation_id = ?`

const historyOrder = ` ORDER BY m.created_at ASC, m.rowid ASC, a.rowid ASC`

// History returns a conversation's messages in ascending created_at order
// with their attachments. An unknown conversation yields an empty slice.
func (c *Client) History(ctx context.Context, conversationID string) ([]models.Message, error) {
	defer c.observe(time.Now())
	return c.queryHistory(ctx, historySelect+historyOrder, conversationID)
}

// HistoryBefore returns the history strictly before the given message:
// the target and everything at or after its timestamp are excluded.
func (c *Client) HistoryBefore(ctx context.Context, conversationID, messageID string) ([]models.Message, error) {
	defer c.observe(time.Now())

	var cutoff float64
	err := c.db.QueryRowContext(ctx,
		`SELECT created_at FROM messages WHERE id = ? AND conversation_id = ?`,
		messageID, conversationID).Scan(&cutoff)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup message: %w", err)
	}

	return c.queryHistory(ctx, historySelect+` AND m.created_at < ?`+historyOrder, conversationID, cutoff)
}

func (c *Client) queryHistory(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	index := map[string]int{}

	for rows.Next() {
		var (
			m                              models.Message
			role, contentType              string
			updatedAt                      sql.NullFloat64
			attID, attName, attPath, attTy sql.NullString
			attSize                        sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &contentType, &m.Content, &m.CreatedAt, &updatedAt,
			&attID, &attName, &attPath, &attTy, &attSize); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}

		i, seen := index[m.ID]
		if !seen {
			m.Role = models.Role(role)
			m.ContentType = models.ContentType(contentType)
			if updatedAt.Valid {
				m.UpdatedAt = &updatedAt.Float64
			}
			messages = append(messages, m)
			i = len(messages) - 1
			index[m.ID] = i
		}

		if attID.Valid {
			messages[i].Attachments = append(messages[i].Attachments, models.Attachment{
				ID:        attID.String,
				MessageID: m.ID,
				FileName:  attName.String,
				FilePath:  attPath.String,
				FileType:  attTy.String,
				FileSize:  attSize.Int64,
			})
		}
	}
	return messages, rows.Err()
}

// GetMessage returns one message with its attachments.
func (c *Client) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	defer c.observe(time.Now())

	var conversationID string
	err := c.db.QueryRowContext(ctx, `SELECT conversation_id FROM messages WHERE id = ?`, id).Scan(&conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}

	msgs, err := c.queryHistory(ctx, historySelect+` AND m.id = ?`+historyOrder, conversationID, id)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	return &msgs[0], nil
}

// GetAttachment returns one attachment by id.
func (c *Client) GetAttachment(ctx context.Context, id string) (*models.Attachment, error) {
	defer c.observe(time.Now())

	var a models.Attachment
	var fileType sql.NullString
	var size sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		`SELECT id, message_id, file_name, file_path, file_type, file_size FROM attachments WHERE id = ?`, id).
		Scan(&a.ID, &a.MessageID, &a.FileName, &a.FilePath, &fileType, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: attachment %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	a.FileType = fileType.String
	a.FileSize = size.Int64
	return &a, nil
}

// EditMessage replaces a message's content. System messages are immutable
// (ErrPermissionDenied). A missing message returns false without error.
func (c *Client) EditMessage(ctx context.Context, id, content string) (bool, error) {
	defer c.observe(time.Now())

	var edited bool
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		var role string
		err := tx.QueryRowContext(ctx, `SELECT role FROM messages WHERE id = ?`, id).Scan(&role)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lookup message: %w", err)
		}
		if models.Role(role) == models.RoleSystem {
			return fmt.Errorf("%w: system messages cannot be edited", ErrPermissionDenied)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET content = ?, updated_at = ? WHERE id = ?`, content, c.now(), id); err != nil {
			return fmt.Errorf("update message: %w", err)
		}
		edited = true
		return nil
	})
	return edited, err
}

// DeleteConversation removes attachments, then messages, then the
// conversation itself, in one transaction.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	defer c.observe(time.Now())

	err := c.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE conversation_id = ?)`, id); err != nil {
			return fmt.Errorf("delete attachments: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: conversation %s", ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.logger.Info("conversation deleted", "conversation_id", id)
	return nil
}

// Package models defines data structures for the aiaio chat backend.
package models

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the persisted roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ContentType classifies a message body.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
	ContentVideo ContentType = "video"
	ContentFile  ContentType = "file"
)

// Valid reports whether c is one of the persisted content types.
func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentImage, ContentAudio, ContentVideo, ContentFile:
		return true
	}
	return false
}

// Conversation is a persistent chat session.
// Timestamps are Unix epoch seconds with sub-second precision.
type Conversation struct {
	ID          string  `json:"conversation_id"`
	CreatedAt   float64 `json:"created_at"`
	LastUpdated float64 `json:"last_updated"`
	Summary     *string `json:"summary,omitempty"`
}

// Message is a single entry in a conversation's append-only log.
type Message struct {
	ID             string       `json:"message_id"`
	ConversationID string       `json:"conversation_id"`
	Role           Role         `json:"role"`
	ContentType    ContentType  `json:"content_type"`
	Content        string       `json:"content"`
	CreatedAt      float64      `json:"created_at"`
	UpdatedAt      *float64     `json:"updated_at,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Attachment is a file uploaded alongside a user message.
type Attachment struct {
	ID        string `json:"attachment_id"`
	MessageID string `json:"message_id"`
	FileName  string `json:"file_name"`
	FilePath  string `json:"file_path"`
	FileType  string `json:"file_type"`
	FileSize  int64  `json:"file_size"`
}

// NewAttachment describes a file to store with a message.
type NewAttachment struct {
	FileName string
	FilePath string
	FileType string
	FileSize int64
}

// CountNonSystem returns how many messages are not system messages.
func CountNonSystem(history []Message) int {
	n := 0
	for _, m := range history {
		if m.Role != RoleSystem {
			n++
		}
	}
	return n
}

// LastSystemContent returns the content of the most recent system message,
// or "" when the history has none.
func LastSystemContent(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleSystem {
			return history[i].Content
		}
	}
	return ""
}

// UserContents returns the contents of all user messages in order.
func UserContents(history []Message) []string {
	var out []string
	for _, m := range history {
		if m.Role == RoleUser {
			out = append(out, m.Content)
		}
	}
	return out
}

package stream

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/raphaelgruber/aiaio-go/internal/provider"
)

// ErrAttachmentIO indicates an attachment file could not be read while
// formatting history.
var ErrAttachmentIO = errors.New("attachment unreadable")

// ToWire converts stored messages to provider messages. Attachments are
// read from disk now and inlined as base64 blocks after the text block.
func ToWire(messages []models.Message) ([]provider.Message, error) {
	out := make([]provider.Message, 0, len(messages))
	for _, m := range messages {
		pm := provider.Message{Role: string(m.Role), Content: m.Content}
		if len(m.Attachments) > 0 {
			parts, err := attachmentParts(m)
			if err != nil {
				return nil, err
			}
			pm.Parts = parts
			pm.Content = ""
		}
		out = append(out, pm)
	}
	return out, nil
}

func attachmentParts(m models.Message) ([]provider.ContentPart, error) {
	parts := make([]provider.ContentPart, 0, len(m.Attachments)+1)
	if m.Content != "" {
		parts = append(parts, provider.ContentPart{Type: provider.PartText, Text: m.Content})
	}

	for _, att := range m.Attachments {
		data, err := os.ReadFile(att.FilePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrAttachmentIO, att.FileName, err)
		}
		parts = append(parts, provider.ContentPart{
			Type:     partType(att.FileType),
			MIMEType: att.FileType,
			Data:     base64.StdEncoding.EncodeToString(data),
			FileName: att.FileName,
		})
	}
	return parts, nil
}

func partType(mime string) provider.PartType {
	switch models.MediaCategory(mime) {
	case "image":
		return provider.PartImage
	case "video":
		return provider.PartVideo
	case "audio":
		return provider.PartAudio
	default:
		return provider.PartFile
	}
}

// Normalize maps a delta to zero or more events: reasoning before content.
// Tool call fragments and usage are not events.
func Normalize(d provider.Delta) []Event {
	var events []Event
	if d.Reasoning != "" {
		events = append(events, Event{Type: EventReasoning, Content: d.Reasoning})
	}
	if d.Content != "" {
		events = append(events, Event{Type: EventContent, Content: d.Content})
	}
	return events
}

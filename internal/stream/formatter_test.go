package stream

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/raphaelgruber/aiaio-go/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestToWirePlainText(t *testing.T) {
	wire, err := ToWire([]models.Message{
		{Role: models.RoleSystem, Content: "You are helpful"},
		{Role: models.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	require.Len(t, wire, 2)
	assert.Equal(t, provider.Message{Role: "system", Content: "You are helpful"}, wire[0])
	assert.Equal(t, provider.Message{Role: "user", Content: "hi"}, wire[1])
}

func TestToWireAttachments(t *testing.T) {
	img := writeFile(t, "a.png", []byte("png-bytes"))
	wav := writeFile(t, "b.wav", []byte("wav-bytes"))
	mp4 := writeFile(t, "c.mp4", []byte("mp4-bytes"))
	pdf := writeFile(t, "d.pdf", []byte("pdf-bytes"))

	wire, err := ToWire([]models.Message{{
		Role:    models.RoleUser,
		Content: "look",
		Attachments: []models.Attachment{
			{FileName: "a.png", FilePath: img, FileType: "image/png"},
			{FileName: "b.wav", FilePath: wav, FileType: "audio/wav"},
			{FileName: "c.mp4", FilePath: mp4, FileType: "video/mp4"},
			{FileName: "d.pdf", FilePath: pdf, FileType: "application/pdf"},
		},
	}})
	require.NoError(t, err)
	require.Len(t, wire, 1)

	parts := wire[0].Parts
	require.Len(t, parts, 5)
	assert.Empty(t, wire[0].Content)
	assert.Equal(t, provider.ContentPart{Type: provider.PartText, Text: "look"}, parts[0])

	wantTypes := []provider.PartType{provider.PartImage, provider.PartAudio, provider.PartVideo, provider.PartFile}
	for i, want := range wantTypes {
		assert.Equal(t, want, parts[i+1].Type)
	}
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png-bytes")), parts[1].Data)
	assert.Equal(t, "data:image/png;base64,"+parts[1].Data, parts[1].DataURI())
	assert.Equal(t, "application/pdf", parts[4].MIMEType)
}

func TestToWireEmptyContentSkipsTextBlock(t *testing.T) {
	img := writeFile(t, "a.png", []byte("x"))

	wire, err := ToWire([]models.Message{{
		Role:        models.RoleUser,
		Attachments: []models.Attachment{{FileName: "a.png", FilePath: img, FileType: "image/png"}},
	}})
	require.NoError(t, err)
	require.Len(t, wire[0].Parts, 1)
	assert.Equal(t, provider.PartImage, wire[0].Parts[0].Type)
}

func TestToWireMissingAttachment(t *testing.T) {
	_, err := ToWire([]models.Message{{
		Role:        models.RoleUser,
		Content:     "see file",
		Attachments: []models.Attachment{{FileName: "gone.png", FilePath: "/nonexistent/gone.png", FileType: "image/png"}},
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAttachmentIO)
	assert.Contains(t, err.Error(), "gone.png")
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		delta provider.Delta
		want  []Event
	}{
		{"content", provider.Delta{Content: "He"}, []Event{{Type: EventContent, Content: "He"}}},
		{"reasoning", provider.Delta{Reasoning: "hmm"}, []Event{{Type: EventReasoning, Content: "hmm"}}},
		{
			"both",
			provider.Delta{Reasoning: "hmm", Content: "He"},
			[]Event{{Type: EventReasoning, Content: "hmm"}, {Type: EventContent, Content: "He"}},
		},
		{"tool fragment only", provider.Delta{ToolCalls: []provider.ToolCallFragment{{Index: 0}}}, nil},
		{"usage only", provider.Delta{Usage: &provider.Usage{InputTokens: 1}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.delta))
		})
	}
}

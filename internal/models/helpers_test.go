package models

import (
	"testing"
	"time"
)

func TestSafeFilename(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "report.pdf", "report_20240309_140507.pdf"},
		{"spaces", "my report.pdf", "my_report_20240309_140507.pdf"},
		{"special chars", "a+b=c!.png", "a_b_c__20240309_140507.png"},
		{"path stripped", "../../etc/passwd", "passwd_20240309_140507"},
		{"no extension", "README", "README_20240309_140507"},
		{"empty", "", "file_20240309_140507"},
		{"only extension", ".png", "file_20240309_140507.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeFilename(tt.in, now)
			if got != tt.want {
				t.Errorf("SafeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMediaCategory(t *testing.T) {
	tests := map[string]string{
		"image/png":       "image",
		"audio/wav":       "audio",
		"video/mp4":       "video",
		"application/pdf": "application",
		"":                "",
		"IMAGE/JPEG":      "image",
	}
	for in, want := range tests {
		if got := MediaCategory(in); got != want {
			t.Errorf("MediaCategory(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHistoryHelpers(t *testing.T) {
	history := []Message{
		{Role: RoleSystem, Content: "old"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "new"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "again"},
	}

	if got := CountNonSystem(history); got != 3 {
		t.Errorf("CountNonSystem = %d, want 3", got)
	}
	if got := LastSystemContent(history); got != "new" {
		t.Errorf("LastSystemContent = %q, want %q", got, "new")
	}
	if got := LastSystemContent(nil); got != "" {
		t.Errorf("LastSystemContent(nil) = %q, want empty", got)
	}
	users := UserContents(history)
	if len(users) != 2 || users[0] != "hi" || users[1] != "again" {
		t.Errorf("UserContents = %v", users)
	}
}

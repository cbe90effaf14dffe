package models

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var nonWord = regexp.MustCompile(`[^\w]`)

// SafeFilename builds a collision-resistant name for an uploaded file:
// the base name with non-word characters replaced by "_", a timestamp,
// and the original extension.
func SafeFilename(original string, now time.Time) string {
	name := filepath.Base(original)
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	base = nonWord.ReplaceAllString(base, "_")
	if base == "" {
		base = "file"
	}
	return base + "_" + now.Format("20060102_150405") + ext
}

// MediaCategory returns the top-level MIME category ("image", "audio", ...).
func MediaCategory(mimeType string) string {
	category, _, _ := strings.Cut(mimeType, "/")
	return strings.ToLower(strings.TrimSpace(category))
}

// EpochSeconds converts t to floating-point Unix seconds.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrinter(t *testing.T) {
	var out, info bytes.Buffer
	p := &printer{out: &out, info: &info, baseURL: "http://srv"}

	for _, ev := range []struct {
		typ     string
		content any
	}{
		{"reasoning", "let me think"},
		{"context", []map[string]any{
			{"source": "b.md", "content": "x", "score": 0.9},
			{"source": "a.md", "content": "y", "score": 0.8},
			{"source": "b.md", "content": "z", "score": 0.7},
		}},
		{"content", "The answer"},
		{"tool-context", map[string]any{
			"tool_name": "calculator",
			"arguments": map[string]any{"b": 2, "a": 1},
			"result":    "3\n",
		}},
		{"content", " is 3."},
		{"done", ""},
	} {
		require.NoError(t, p.handle(event(t, ev.typ, ev.content)))
	}
	require.NoError(t, p.finish())

	assert.Equal(t, "The answer is 3.\n", out.String())
	assert.Equal(t, strings.Join([]string{
		"[thinking] let me think",
		"• Context: 3 passages from a.md, b.md",
		"• Tool calculator(a=1, b=2): 3",
		"",
	}, "\n"), info.String())
}

func TestPrinterStreamError(t *testing.T) {
	var out, info bytes.Buffer
	p := &printer{out: &out, info: &info}

	require.NoError(t, p.handle(event(t, "content", "partial")))
	require.NoError(t, p.handle(event(t, "error", "Error: boom")))
	require.NoError(t, p.handle(event(t, "done", "")))

	err := p.finish()
	require.Error(t, err)
	assert.Equal(t, "Error: boom", err.Error())
	assert.Equal(t, "partial\n", out.String())
}

func TestDescribeEventIgnoresOthers(t *testing.T) {
	_, ok := describeEvent(event(t, "content", "x"), "")
	assert.False(t, ok)
	_, ok = describeEvent(event(t, "context", []any{}), "")
	assert.False(t, ok, "empty context is not worth a line")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "äöüäöüä...", truncate("äöüäöüäöüäöü", 10), "counts runes")
}

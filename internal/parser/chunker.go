package parser

import (
	"fmt"
	"strings"
	"unicode"
)

// Chunk is one retrievable piece of a document.
type Chunk struct {
	ID       string // "<source>#<position>"
	Source   string
	Heading  string // section path, empty when the document has no headings
	Content  string
	Position int
}

// ChunkConfig controls chunk sizes, in bytes.
type ChunkConfig struct {
	MaxSize int // sections longer than this are split
	MinSize int // sections shorter than this merge into the previous chunk
	Overlap int // trailing text of the previous chunk repeated at the start
}

// DefaultChunkConfig returns the sizes used for ingestion.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{MaxSize: 1000, MinSize: 120, Overlap: 80}
}

// ChunkDocument splits doc along sections, then paragraphs, then
// sentences. An empty document yields no chunks.
func ChunkDocument(doc *Document, cfg ChunkConfig) []Chunk {
	type piece struct{ heading, text string }
	var pieces []piece

	if len(doc.Sections) == 0 {
		for _, p := range splitText(doc.Body, cfg.MaxSize) {
			pieces = append(pieces, piece{"", p})
		}
	} else {
		for _, s := range doc.Sections {
			if s.Content == "" {
				continue
			}
			if len(s.Content) < cfg.MinSize && len(pieces) > 0 && len(pieces[len(pieces)-1].text)+len(s.Content) <= cfg.MaxSize {
				last := &pieces[len(pieces)-1]
				last.text += "\n\n" + s.Content
				continue
			}
			for _, p := range splitText(s.Content, cfg.MaxSize) {
				pieces = append(pieces, piece{s.Path, p})
			}
		}
	}

	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		text := p.text
		if i > 0 && cfg.Overlap > 0 && pieces[i-1].heading == p.heading {
			if tail := overlapTail(pieces[i-1].text, cfg.Overlap); tail != "" {
				text = tail + " " + text
			}
		}
		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("%s#%d", doc.Source, i),
			Source:   doc.Source,
			Heading:  p.heading,
			Content:  text,
			Position: i,
		})
	}
	return chunks
}

// splitText packs paragraphs into pieces of at most max bytes, splitting
// oversized paragraphs at sentence ends.
func splitText(text string, max int) []string {
	var (
		out []string
		cur strings.Builder
	)
	emit := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) > max {
			emit()
			out = append(out, packSentences(para, max)...)
			continue
		}
		if cur.Len() > 0 && cur.Len()+2+len(para) > max {
			emit()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	emit()
	return out
}

func packSentences(para string, max int) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, s := range sentences(para) {
		if cur.Len() > 0 && cur.Len()+1+len(s) > max {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// sentences splits at '.', '!' or '?' followed by whitespace. A period
// after a single capital letter ("J. Smith") does not end a sentence.
func sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if r == '.' && i > 0 && unicode.IsUpper(runes[i-1]) && (i == 1 || unicode.IsSpace(runes[i-2])) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// overlapTail returns up to n trailing bytes of s, starting at a word.
func overlapTail(s string, n int) string {
	if len(s) <= n {
		return ""
	}
	tail := s[len(s)-n:]
	if i := strings.IndexByte(tail, ' '); i >= 0 {
		tail = tail[i+1:]
	}
	return strings.TrimSpace(tail)
}

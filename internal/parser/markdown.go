// Package parser turns Markdown and plain-text documents into heading-aware
// chunks for retrieval.
package parser

import (
	"bufio"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed source document.
type Document struct {
	Source      string
	Title       string
	Frontmatter map[string]any
	Body        string    // content after front matter
	Sections    []Section // empty for documents without headings
}

// Section is a heading and the text under it.
type Section struct {
	Level   int
	Heading string
	Path    string // "Setup > Install"
	Content string
}

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	titleRe   = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// Parse reads optional YAML front matter and splits the body into
// sections. Invalid front matter is ignored.
func Parse(source, content string) *Document {
	doc := &Document{Source: source, Frontmatter: map[string]any{}}

	body := strings.ReplaceAll(content, "\r\n", "\n")
	if rest, ok := strings.CutPrefix(body, "---\n"); ok {
		if fm, after, found := strings.Cut(rest, "\n---"); found {
			if err := yaml.Unmarshal([]byte(fm), &doc.Frontmatter); err != nil || doc.Frontmatter == nil {
				doc.Frontmatter = map[string]any{}
			}
			body = strings.TrimPrefix(after, "\n")
		}
	}

	doc.Body = strings.TrimSpace(body)
	doc.Title = title(doc.Frontmatter, doc.Body)
	doc.Sections = sections(doc.Body)
	return doc
}

func title(fm map[string]any, body string) string {
	for _, key := range []string{"title", "name"} {
		if s, ok := fm[key].(string); ok && s != "" {
			return s
		}
	}
	if m := titleRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// sections splits body at headings. Text before the first heading becomes
// a level-0 section with an empty heading.
func sections(body string) []Section {
	type open struct {
		level   int
		heading string
	}
	var (
		out   []Section
		stack []open
		cur   *Section
		buf   strings.Builder
	)

	flush := func() {
		if cur == nil {
			return
		}
		cur.Content = strings.TrimSpace(buf.String())
		out = append(out, *cur)
		buf.Reset()
	}

	inFence := false
	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
		}

		if m := headingRe.FindStringSubmatch(line); m != nil && !inFence {
			flush()
			level := len(m[1])
			for len(stack) > 0 && stack[len(stack)-1].level >= level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, open{level, m[2]})

			names := make([]string, len(stack))
			for i, o := range stack {
				names[i] = o.heading
			}
			cur = &Section{Level: level, Heading: m[2], Path: strings.Join(names, " > ")}
			continue
		}

		if cur == nil {
			if strings.TrimSpace(line) == "" {
				continue
			}
			cur = &Section{}
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	flush()

	// Sections with neither heading nor text carry nothing.
	kept := out[:0]
	for _, s := range out {
		if s.Heading != "" || s.Content != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 1 && kept[0].Heading == "" {
		return nil
	}
	return kept
}

// Tags returns the "tags" front matter entry as strings.
func (d *Document) Tags() []string {
	switch v := d.Frontmatter["tags"].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(strings.ReplaceAll(v, ",", " "))
	}
	return nil
}

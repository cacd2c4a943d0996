package parser

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"
)

// Transcript is a parsed transcript file.
type Transcript struct {
	// Frontmatter metadata (from YAML), empty when absent
	Frontmatter map[string]any

	// Title from frontmatter, a leading "Title:" line, or the filename
	Title string

	// Content after frontmatter, trimmed
	Content string
}

var titleLineRegex = regexp.MustCompile(`(?i)^title:\s*(.+)$`)

// ParseTranscript parses raw transcript text. filename is the source key and
// is used for the title when the text carries none. HTML transcripts
// (.html, .htm) are reduced to their visible text first.
func ParseTranscript(filename, raw string) *Transcript {
	doc := &Transcript{Frontmatter: make(map[string]any)}

	htmlTitle := ""
	if IsHTML(filename) {
		raw, htmlTitle = htmlToText(raw)
	}

	remaining := strings.ReplaceAll(raw, "\r\n", "\n")
	if strings.HasPrefix(remaining, "---\n") {
		endIdx := strings.Index(remaining[4:], "\n---")
		if endIdx >= 0 {
			frontmatterYAML := remaining[4 : 4+endIdx]
			remaining = remaining[4+endIdx+4:]

			if err := yaml.Unmarshal([]byte(frontmatterYAML), &doc.Frontmatter); err != nil {
				// Malformed frontmatter is treated as absent
				doc.Frontmatter = make(map[string]any)
			}
		}
	}

	doc.Content = strings.TrimSpace(remaining)
	doc.Title = extractTitle(doc.Frontmatter, doc.Content, htmlTitle, filename)
	return doc
}

// extractTitle picks the first available title source.
func extractTitle(fm map[string]any, content, htmlTitle, filename string) string {
	if title, ok := fm["title"].(string); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}

	for line := range strings.SplitSeq(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := titleLineRegex.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
		break
	}

	if t := strings.TrimSpace(htmlTitle); t != "" {
		return t
	}

	return TitleFromFilename(filename)
}

// TitleFromFilename derives a readable title from a transcript filename:
// extension stripped, '_' and '-' become spaces, whitespace collapsed.
func TitleFromFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Map(func(r rune) rune {
		if r == '_' || r == '-' {
			return ' '
		}
		return r
	}, base)
	title := strings.Join(strings.FieldsFunc(base, unicode.IsSpace), " ")
	if title == "" || title == "." {
		return "Untitled"
	}
	return title
}

// IsHTML reports whether filename names an HTML transcript.
func IsHTML(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// htmlToText extracts visible text and the <title> of an HTML page.
// Unparseable input is returned unchanged.
func htmlToText(raw string) (string, string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw, ""
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, head").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var lines []string
	for line := range strings.SplitSeq(root.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), title
}

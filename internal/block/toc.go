package block

import (
	"strconv"
	"strings"
	"unicode"
)

// TOCItem is one entry of a document's table of contents. ID is the anchor
// slug, unique within the document.
type TOCItem struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Level   int    `json:"level"`
	BlockID string `json:"-"`
}

// Slugify turns heading text into a URL-safe anchor: lowercased, whitespace
// runs become single hyphens, and everything outside ASCII alphanumerics,
// underscore, hyphen and Hangul syllables is dropped. Leading and trailing
// hyphens are trimmed.
func Slugify(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	var b strings.Builder
	pendingHyphen := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r) || r == '-':
			pendingHyphen = true
		case r >= 'a' && r <= 'z',
			r >= '0' && r <= '9',
			r == '_',
			r >= '가' && r <= '힣':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractTOC collects heading blocks depth-first in document order. Headings
// with empty or whitespace-only text are skipped entirely. Slugs that would
// collide with an earlier heading get a -1, -2, ... suffix.
func ExtractTOC(blocks []Block) []TOCItem {
	var toc []TOCItem
	assigned := make(map[string]bool)

	var walk func([]Block)
	walk = func(list []Block) {
		for _, b := range list {
			if level := headingLevel(b.Type); level > 0 {
				text := strings.TrimSpace(b.PlainText())
				if text != "" {
					id := uniqueSlug(Slugify(text), assigned)
					toc = append(toc, TOCItem{
						ID:      id,
						Text:    text,
						Level:   level,
						BlockID: b.ID,
					})
				}
			}
			if len(b.Children) > 0 {
				walk(b.Children)
			}
		}
	}
	walk(blocks)
	return toc
}

// HasMeaningfulTOC reports whether the document has enough headings for a
// navigable table of contents. A single heading is not worth one.
func HasMeaningfulTOC(blocks []Block) bool {
	return len(ExtractTOC(blocks)) >= 2
}

func headingLevel(t Type) int {
	switch t {
	case TypeHeading1:
		return 1
	case TypeHeading2:
		return 2
	case TypeHeading3:
		return 3
	}
	return 0
}

func uniqueSlug(base string, assigned map[string]bool) string {
	slug := base
	for i := 1; assigned[slug]; i++ {
		slug = base + "-" + strconv.Itoa(i)
	}
	assigned[slug] = true
	return slug
}

package signal

import (
	"strings"

	readability "codeberg.org/readeck/go-readability"
)

const previewMaxRunes = 200

// BuildPreview produces a short human-readable summary of a page for
// notification messages. Readability extraction is tried first; when the
// page has no article-like content the canonical visible text is used.
func BuildPreview(body, visibleText string) string {
	text := ""
	if article, err := readability.FromReader(strings.NewReader(body), nil); err == nil {
		if article.Excerpt != "" {
			text = normalizeSpace(article.Excerpt)
		} else if article.TextContent != "" {
			text = normalizeSpace(article.TextContent)
		}
	}
	if text == "" {
		text = normalizeSpace(visibleText)
	}
	if text == "" {
		return ""
	}
	if len([]rune(text)) > previewMaxRunes {
		return truncate(text, previewMaxRunes) + "…"
	}
	return text
}

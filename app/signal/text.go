package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

var keywordRe = regexp.MustCompile(`(?i)\b(inbox|message|messages|notification|notifications|alert|alerts)\b`)

// ContainsKeyword reports whether text mentions common inbox/notification
// vocabulary. The hash-fallback detector only fires behind this gate.
func ContainsKeyword(text string) bool {
	return keywordRe.MatchString(text)
}

// visibleText extracts the page's text nodes, one whitespace-normalized
// line per node, joined by newlines. Script/style/noscript/template
// content must already be removed from the document.
func visibleText(doc *goquery.Document) string {
	var lines []string
	for _, root := range doc.Selection.Nodes {
		collectTextLines(root, &lines)
	}
	return norm.NFC.String(strings.Join(lines, "\n"))
}

func collectTextLines(n *html.Node, lines *[]string) {
	if n.Type == html.TextNode {
		if line := strings.Join(strings.Fields(n.Data), " "); line != "" {
			*lines = append(*lines, line)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectTextLines(c, lines)
	}
}

// HashText returns the sha256 hex digest of NFC-normalized text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(norm.NFC.String(text)))
	return hex.EncodeToString(sum[:])
}

// normalizeSpace collapses runs of whitespace into single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate limits s to max runes.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

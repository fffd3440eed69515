package signal

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Provider is a site-specific count heuristic consulted before the generic
// strategies. Providers exist for sites whose markup is known well enough
// that structural counting beats badge scanning.
type Provider interface {
	Name() string
	Match(sourceURL string) bool
	Count(doc *goquery.Document, visibleText string) *int
}

func builtinProviders() []Provider {
	return []Provider{gmailProvider{}}
}

var (
	gmailTitleRe  = regexp.MustCompile(`^\s*\((\d{1,4})\)\s*Inbox`)
	gmailInboxRe  = regexp.MustCompile(`(?i)Inbox\s*\(?(\d{1,4})\)?`)
	gmailUnreadRe = regexp.MustCompile(`(?i)Unread[:\s]*?(\d{1,4})`)
)

// gmailProvider counts unread inbox rows in the Gmail web UI, which marks
// them with the zA zE class pair. Several fallbacks cover older and mobile
// variants of the markup.
type gmailProvider struct{}

func (gmailProvider) Name() string { return "gmail" }

func (gmailProvider) Match(sourceURL string) bool {
	return strings.Contains(sourceURL, "mail.google.com")
}

func (gmailProvider) Count(doc *goquery.Document, visibleText string) *int {
	if rows := doc.Find("tr.zA.zE").Length(); rows > 0 {
		return &rows
	}
	if nodes := doc.Find(".zA.zE").Length(); nodes > 0 {
		return &nodes
	}
	if nodes := doc.Find(".unread, .unread-count, .bsu").Length(); nodes > 0 {
		return &nodes
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if m := gmailTitleRe.FindStringSubmatch(title); m != nil {
		return atoiPtr(m[1])
	}

	if m := gmailInboxRe.FindStringSubmatch(visibleText); m != nil {
		return atoiPtr(m[1])
	}
	if m := gmailUnreadRe.FindStringSubmatch(visibleText); m != nil {
		return atoiPtr(m[1])
	}

	// Mobile/basic variants label unread rows instead of classing them.
	if nodes := doc.Find(`[aria-label*="unread"], .zF, .yP`).Length(); nodes > 0 {
		return &nodes
	}

	return nil
}

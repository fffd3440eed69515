// Package signal derives a comparable activity signal from arbitrary,
// uncontrolled page markup. Third-party markup is unstable, so no single
// heuristic is trusted: the extractor always attempts the richest signal
// (a numeric unread count) first, and also produces a canonical visible
// text for hashing and a set of stable item keys for list-style pages.
package signal

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Extractor struct {
	providers  []Provider
	strategies []countStrategy
}

func NewExtractor() *Extractor {
	return &Extractor{
		providers:  builtinProviders(),
		strategies: genericCountStrategies(),
	}
}

// Run extracts a Signal from one page snapshot. sourceURL selects
// site-specific providers; it is never fetched here.
func (e *Extractor) Run(body, sourceURL string) (*Signal, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("page body is empty")
	}

	if looksLikeFeed(body) {
		if sig, ok := feedSignal(body); ok {
			slog.Debug("Extracted feed signal", "url", sourceURL, "items", len(sig.Items))
			return sig, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	// Non-visible content would pollute both the keyword scan and the hash.
	doc.Find("script, style, noscript, template").Remove()

	sig := &Signal{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Text:  visibleText(doc),
	}
	sig.TextHash = HashText(sig.Text)
	sig.Count = e.extractCount(doc, sig.Text, sourceURL)
	sig.Items = itemKeys(doc)

	return sig, nil
}

// extractCount walks the strategy chain: site-specific providers first
// (least ambiguous), then the generic heuristics in fixed order.
func (e *Extractor) extractCount(doc *goquery.Document, text, sourceURL string) *int {
	for _, p := range e.providers {
		if !p.Match(sourceURL) {
			continue
		}
		if count := p.Count(doc, text); count != nil {
			slog.Debug("Count extracted", "strategy", p.Name(), "count", *count)
			return count
		}
	}

	for _, strat := range e.strategies {
		if count := strat.fn(doc, text); count != nil {
			slog.Debug("Count extracted", "strategy", strat.name, "count", *count)
			return count
		}
	}

	return nil
}

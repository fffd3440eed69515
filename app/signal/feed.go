package signal

import (
	"strings"

	"github.com/mmcdole/gofeed"
)

// Some dashboards expose their activity stream as RSS/Atom rather than
// HTML. When a fetch body looks like a feed, entries are turned into item
// keys directly instead of running the HTML heuristics.

func looksLikeFeed(body string) bool {
	trimmed := strings.TrimSpace(body)
	for _, prefix := range []string{"<?xml", "<rss", "<feed"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

// feedSignal parses body as RSS/Atom. Entry GUIDs (falling back to links,
// then titles) become item keys; titles become previews and the hash input.
func feedSignal(body string) (*Signal, bool) {
	feed, err := gofeed.NewParser().ParseString(body)
	if err != nil || feed == nil {
		return nil, false
	}

	var items []Item
	var titles []string
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		key := entry.GUID
		if key == "" {
			key = entry.Link
		}
		title := normalizeSpace(entry.Title)
		if key == "" {
			key = "TXT::" + truncate(title, 160)
		}
		if key == "TXT::" {
			continue
		}
		preview := title
		if preview == "" {
			preview = entry.Link
		}
		items = append(items, Item{Key: key, Preview: truncate(preview, 120)})
		if title != "" {
			titles = append(titles, title)
		}
	}

	text := strings.Join(titles, "\n")
	return &Signal{
		Title:    normalizeSpace(feed.Title),
		Text:     text,
		TextHash: HashText(text),
		Items:    items,
	}, true
}

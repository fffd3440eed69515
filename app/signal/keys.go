package signal

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"webnotify/app/source"
)

// Selectors for list-like structures. Restricting key extraction to these
// keeps noise down; the whole document is only scanned when a page has no
// recognizable list at all.
const (
	listContainerSel = `[role="list"], [role="listbox"], ul, ol, .list, .notifications, .inbox, .menu`
	listItemSel      = `[role="listitem"], li, .notification, .inbox-item, .message`
)

// itemKeys derives stable keys for the activity items on a page. Anchors
// inside list structures are keyed by link target (plus a text snippet when
// the target alone is too generic); linkless blocks with substantial text
// get text-based keys. The result is capped at the seen-key bound.
func itemKeys(doc *goquery.Document) []Item {
	containers := doc.Find(listContainerSel)
	if containers.Length() == 0 {
		containers = doc.Selection
	}

	var items []Item
	seen := make(map[string]struct{})

	add := func(key, preview string) {
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		items = append(items, Item{Key: key, Preview: preview})
	}

	containers.Each(func(_ int, cont *goquery.Selection) {
		cont.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href := strings.TrimSpace(a.AttrOr("href", ""))
			if href == "" {
				return
			}
			text := truncate(normalizeSpace(a.Text()), 120)
			key := href
			if len(text) >= 8 { // add text to reduce collisions when hrefs are generic
				key = href + " :: " + text
			}
			preview := text
			if preview == "" {
				preview = href
			}
			add(key, preview)
		})

		// Also pick up obvious item blocks with text but no link.
		cont.Find(listItemSel).Each(func(_ int, item *goquery.Selection) {
			if item.Find("a[href]").Length() > 0 {
				return
			}
			t := normalizeSpace(item.Text())
			if len(t) < 12 {
				return
			}
			add("TXT::"+truncate(t, 160), truncate(t, 160))
		})
	})

	if len(items) > source.SeenKeyCap {
		items = items[:source.SeenKeyCap]
	}
	return items
}

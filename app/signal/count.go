package signal

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Count extraction runs an ordered chain of strategies; the first one to
// produce a number wins. Ordering goes from least to most noisy: page
// title, badge-ish attributes, inbox-like anchors, badge-ish class names,
// keyword lines in the visible text.

type countStrategy struct {
	name string
	fn   func(doc *goquery.Document, text string) *int
}

func genericCountStrategies() []countStrategy {
	return []countStrategy{
		{"title", countFromTitle},
		{"attrs", countFromAttributes},
		{"anchors", countFromAnchors},
		{"classes", countFromClasses},
		{"text", countFromText},
	}
}

var (
	titleLeadingRe = regexp.MustCompile(`^\s*\((\d{1,5})\)`)
	titleUnreadRe  = regexp.MustCompile(`(?i)\b(\d{1,5})\s+(?:unread|new)\b`)
	numberRe       = regexp.MustCompile(`\b(\d{1,5})\b`)
	smallNumberRe  = regexp.MustCompile(`\b(\d{1,3})\b`)
)

// countFromTitle matches titles like "(3) Inbox - Example" or "4 new messages".
func countFromTitle(doc *goquery.Document, _ string) *int {
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		return nil
	}
	if m := titleLeadingRe.FindStringSubmatch(title); m != nil {
		return atoiPtr(m[1])
	}
	if m := titleUnreadRe.FindStringSubmatch(title); m != nil {
		return atoiPtr(m[1])
	}
	return nil
}

// badgeAttrs are attributes that often carry tooltip/badge text.
var badgeAttrs = []string{"aria-label", "title", "data-tooltip", "alt", "data-count", "data-unread"}

func countFromAttributes(doc *goquery.Document, _ string) *int {
	var found *int
	for _, attr := range badgeAttrs {
		if found != nil {
			break
		}
		doc.Find("[" + attr + "]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			val := strings.TrimSpace(s.AttrOr(attr, ""))
			if val == "" || !containsBadgeWord(val) {
				return true
			}
			if m := numberRe.FindStringSubmatch(val); m != nil {
				found = atoiPtr(m[1])
				return false
			}
			return true
		})
	}
	return found
}

func containsBadgeWord(s string) bool {
	low := strings.ToLower(s)
	for _, w := range []string{"inbox", "unread", "new", "notifications", "notification"} {
		if strings.Contains(low, w) {
			return true
		}
	}
	return false
}

// inboxHrefTokens mark link targets that plausibly lead to an inbox or
// notification view.
var inboxHrefTokens = []string{"#inbox", "/inbox", "/mail", "mail.google.com", "notifications", "/feed/notifications"}

func countFromAnchors(doc *goquery.Document, _ string) *int {
	var found *int
	doc.Find("a[href], button").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href := strings.ToLower(s.AttrOr("href", ""))
		text := normalizeSpace(s.Text())

		if !anchorLooksInboxy(href, text) {
			return true
		}

		if m := numberRe.FindStringSubmatch(text); m != nil {
			found = atoiPtr(m[1])
			return false
		}

		// No number in the anchor itself; look at its siblings, where
		// badge counters commonly sit.
		var sibFound *int
		s.Siblings().EachWithBreak(func(_ int, sib *goquery.Selection) bool {
			if m := numberRe.FindStringSubmatch(normalizeSpace(sib.Text())); m != nil {
				sibFound = atoiPtr(m[1])
				return false
			}
			return true
		})
		if sibFound != nil {
			found = sibFound
			return false
		}
		return true
	})
	return found
}

func anchorLooksInboxy(href, text string) bool {
	for _, token := range inboxHrefTokens {
		if strings.Contains(href, token) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(text), "inbox") || strings.Contains(href, "mail")
}

// badgeClassTokens mark elements whose class names suggest an unread badge.
var badgeClassTokens = []string{"badge", "count", "unread", "bsu"}

func countFromClasses(doc *goquery.Document, _ string) *int {
	var found *int
	doc.Find("[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		cls := strings.ToLower(s.AttrOr("class", ""))
		matched := false
		for _, token := range badgeClassTokens {
			if strings.Contains(cls, token) {
				matched = true
				break
			}
		}
		if !matched {
			return true
		}

		text := normalizeSpace(s.Text())
		if text == "" {
			s.Find("span, b").EachWithBreak(func(_ int, child *goquery.Selection) bool {
				if t := normalizeSpace(child.Text()); t != "" {
					text = t
					return false
				}
				return true
			})
		}
		if text == "" {
			return true
		}
		if m := numberRe.FindStringSubmatch(text); m != nil {
			found = atoiPtr(m[1])
			return false
		}
		return true
	})
	return found
}

// countFromText scans visible-text lines containing an activity keyword and
// takes the maximum embedded integer across matching lines.
func countFromText(_ *goquery.Document, text string) *int {
	var best *int
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !keywordRe.MatchString(line) {
			continue
		}
		m := smallNumberRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		val, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if best == nil || val > *best {
			best = &val
		}
	}
	return best
}

func atoiPtr(s string) *int {
	val, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &val
}

package signal

// Item is one list-style activity entry found on a page. Key is stable
// across polls; Preview is human-readable text for notification messages.
type Item struct {
	Key     string
	Preview string
}

// Signal is everything the extractor could derive from one page snapshot.
// Count is the richest signal and may be absent; Text/TextHash always
// carry the canonical visible text; Items may be empty.
type Signal struct {
	Title    string
	Count    *int
	Text     string
	TextHash string
	Items    []Item
}

// Keys returns the item keys in page order.
func (s *Signal) Keys() []string {
	keys := make([]string, len(s.Items))
	for i, item := range s.Items {
		keys[i] = item.Key
	}
	return keys
}

// HasKeyword reports whether the visible text mentions inbox/message/
// notification/alert vocabulary.
func (s *Signal) HasKeyword() bool {
	return ContainsKeyword(s.Text)
}

// Merge combines a stable snapshot with an optional earlier one. The stable
// snapshot wins everywhere except the count, where the maximum is kept so a
// transient badge seen only in the early render is not lost.
func Merge(stable, early *Signal) *Signal {
	if stable == nil {
		return early
	}
	if early == nil || early.Count == nil {
		return stable
	}
	if stable.Count == nil || *early.Count > *stable.Count {
		merged := *stable
		count := *early.Count
		merged.Count = &count
		return &merged
	}
	return stable
}

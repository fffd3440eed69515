// Package detect decides whether a freshly extracted signal constitutes
// genuinely new activity for a source, given the persisted baseline. It is
// a pure decision function: the caller fetches, extracts, and persists.
package detect

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"webnotify/app/signal"
	"webnotify/app/source"
)

// Evaluator runs the change-detection state machine. The clock is
// injectable for tests.
type Evaluator struct {
	now func() time.Time
}

func NewEvaluator() *Evaluator {
	return &Evaluator{now: time.Now}
}

// Run compares sig against the source's baseline and returns the updated
// baseline plus at most one event. Detection strategies are consulted in
// fixed precedence order and are mutually exclusive within one check:
// item keys first (link-level novelty is the least ambiguous signal),
// count increase next, keyword-gated text hash last. The fingerprint and
// recorded mode always advance, whether or not an event fires.
//
// body is the raw page markup, used only to build the preview for
// hash-fallback events.
func (e *Evaluator) Run(src *source.Source, mode source.Mode, fp source.Fingerprint, sig *signal.Signal, body string) (source.Baseline, *Event) {
	baseline := src.Baseline
	fp.SavedAt = e.now().UTC()

	// First run, or the fetch mode changed since the baseline was
	// recorded: re-baseline silently. The same page can legitimately look
	// different through HTTP and a rendered browser, so a mode switch
	// must never read as a content change.
	if !baseline.Initialized() || (baseline.Mode != "" && baseline.Mode != mode) {
		e.rebaseline(&baseline, mode, fp, sig)
		return baseline, nil
	}

	var event *Event

	switch {
	case e.detectNewItems(src, &baseline, sig, &event):
	case e.detectCountIncrease(src, &baseline, sig, &event):
	default:
		e.detectTextChange(src, &baseline, sig, body, &event)
	}

	baseline.Fingerprint = fp
	baseline.Mode = mode

	return baseline, event
}

// rebaseline records the current signal without emitting. Exactly one of
// count/hash is freshly set; item keys are folded so the next check has a
// seen-set to diff against.
func (e *Evaluator) rebaseline(baseline *source.Baseline, mode source.Mode, fp source.Fingerprint, sig *signal.Signal) {
	baseline.Fingerprint = fp
	baseline.Mode = mode
	if sig.Count != nil {
		count := *sig.Count
		baseline.LastCount = &count
		baseline.LastHash = ""
	} else {
		baseline.LastHash = sig.TextHash
		baseline.LastCount = nil
	}
	baseline.FoldSeenKeys(sig.Keys())
}

// detectNewItems fires when extracted item keys contain entries absent
// from the stored seen-set. An empty stored set means keys appeared for
// the first time mid-life; that folds silently, mirroring the no-prior
// rule of the count detector. Returns true when this strategy claimed the
// check (with or without an event).
func (e *Evaluator) detectNewItems(src *source.Source, baseline *source.Baseline, sig *signal.Signal, event **Event) bool {
	if len(sig.Items) == 0 {
		return false
	}

	if len(baseline.SeenKeys) == 0 {
		baseline.FoldSeenKeys(sig.Keys())
		return true
	}

	seen := baseline.SeenKeySet()
	var fresh []signal.Item
	for _, item := range sig.Items {
		if _, ok := seen[item.Key]; !ok {
			fresh = append(fresh, item)
		}
	}
	if len(fresh) == 0 {
		return false
	}

	previews := make([]string, 0, 3)
	for _, item := range fresh {
		if item.Preview == "" {
			continue
		}
		previews = append(previews, item.Preview)
		if len(previews) == 3 {
			break
		}
	}
	message := strings.Join(previews, "; ")
	if message == "" {
		message = fmt.Sprintf("%d new items", len(fresh))
	}

	*event = &Event{
		UserID:     src.UserID,
		SourceID:   src.ID,
		Title:      fmt.Sprintf("New items on %s", src.Name),
		Message:    message,
		Link:       src.URL,
		DetectedAt: e.now().UTC(),
		Meta:       map[string]any{"detector": DetectorNewKeys, "new": len(fresh)},
	}
	baseline.FoldSeenKeys(sig.Keys())

	slog.Debug("New items detected", "source", src.Name, "new", len(fresh))
	return true
}

// detectCountIncrease fires only on a strict increase. Counts are not
// assumed monotonic: a drop just updates the baseline.
func (e *Evaluator) detectCountIncrease(src *source.Source, baseline *source.Baseline, sig *signal.Signal, event **Event) bool {
	if sig.Count == nil {
		return false
	}

	now := *sig.Count
	prev := baseline.LastCount

	count := now
	baseline.LastCount = &count

	if prev == nil || now <= *prev {
		return true
	}

	*event = &Event{
		UserID:     src.UserID,
		SourceID:   src.ID,
		Title:      fmt.Sprintf("New messages on %s", src.Name),
		Message:    fmt.Sprintf("Unread count: %d", now),
		Link:       src.URL,
		DetectedAt: e.now().UTC(),
		Meta:       map[string]any{"detector": DetectorCount, "prev": *prev, "now": now},
	}

	slog.Debug("Count increase detected", "source", src.Name, "prev", *prev, "now", now)
	return true
}

// detectTextChange is the noisiest detector and only runs when no count
// was extracted. A changed hash fires only when the visible text contains
// an activity keyword; the hash baseline advances either way.
func (e *Evaluator) detectTextChange(src *source.Source, baseline *source.Baseline, sig *signal.Signal, body string, event **Event) {
	prevHash := baseline.LastHash
	baseline.LastHash = sig.TextHash

	if prevHash == "" || sig.TextHash == prevHash || !sig.HasKeyword() {
		return
	}

	message := signal.BuildPreview(body, sig.Text)
	if message == "" {
		message = "Page changed"
	}

	*event = &Event{
		UserID:     src.UserID,
		SourceID:   src.ID,
		Title:      fmt.Sprintf("Activity on %s", src.Name),
		Message:    message,
		Link:       src.URL,
		DetectedAt: e.now().UTC(),
		Meta:       map[string]any{"detector": DetectorTextHash, "keywords": true},
	}

	slog.Debug("Text change detected", "source", src.Name)
}

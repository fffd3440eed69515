package detect

import (
	"testing"
	"time"

	"webnotify/app/signal"
	"webnotify/app/source"
)

func testEvaluator() *Evaluator {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &Evaluator{now: func() time.Time { return fixed }}
}

func testSource() *source.Source {
	return &source.Source{
		ID:      "src-1",
		UserID:  "alice",
		Name:    "inbox",
		URL:     "https://example.com/inbox",
		Enabled: true,
	}
}

func countSignal(n int) *signal.Signal {
	return &signal.Signal{Count: &n, Text: "inbox", TextHash: "hash-static"}
}

func hashSignal(hash, text string) *signal.Signal {
	return &signal.Signal{Text: text, TextHash: hash}
}

func itemSignal(keys ...string) *signal.Signal {
	items := make([]signal.Item, len(keys))
	for i, k := range keys {
		items[i] = signal.Item{Key: k, Preview: "preview of " + k}
	}
	return &signal.Signal{Text: "inbox", TextHash: "hash-static", Items: items}
}

func fp(hash string) source.Fingerprint {
	return source.Fingerprint{BodyHash: hash}
}

func TestEvaluator_FirstCheckBaselinesSilently(t *testing.T) {
	e := testEvaluator()
	src := testSource()

	baseline, event := e.Run(src, source.ModeRequests, fp("f1"), countSignal(4), "")
	if event != nil {
		t.Fatalf("First check must never emit, got %+v", event)
	}
	if baseline.LastCount == nil || *baseline.LastCount != 4 {
		t.Errorf("Expected count 4 recorded, got %v", baseline.LastCount)
	}
	if baseline.LastHash != "" {
		t.Errorf("Count and hash must not both be freshly set on first check")
	}
	if baseline.Mode != source.ModeRequests {
		t.Errorf("Expected mode recorded, got %q", baseline.Mode)
	}
	if baseline.Fingerprint.BodyHash != "f1" {
		t.Errorf("Expected fingerprint stored")
	}
}

func TestEvaluator_FirstCheckWithoutCountStoresHash(t *testing.T) {
	e := testEvaluator()
	src := testSource()

	baseline, event := e.Run(src, source.ModeRequests, fp("f1"), hashSignal("h1", "inbox stuff"), "")
	if event != nil {
		t.Fatalf("First check must never emit")
	}
	if baseline.LastHash != "h1" {
		t.Errorf("Expected hash recorded, got %q", baseline.LastHash)
	}
	if baseline.LastCount != nil {
		t.Errorf("Count must stay unset when no count was extracted")
	}
}

func TestEvaluator_UnchangedSignalIsSilent(t *testing.T) {
	e := testEvaluator()
	src := testSource()

	baseline, _ := e.Run(src, source.ModeRequests, fp("f1"), countSignal(4), "")
	src.Baseline = baseline

	_, event := e.Run(src, source.ModeRequests, fp("f1"), countSignal(4), "")
	if event != nil {
		t.Errorf("Unchanged count should not emit, got %+v", event)
	}
}

func TestEvaluator_CountSequence(t *testing.T) {
	e := testEvaluator()
	src := testSource()

	sequence := []int{2, 2, 5, 3, 3, 6}
	wantEvent := []bool{false, false, true, false, false, true}

	for i, n := range sequence {
		baseline, event := e.Run(src, source.ModeRequests, fp("f"), countSignal(n), "")
		src.Baseline = baseline

		if (event != nil) != wantEvent[i] {
			t.Fatalf("Step %d (count %d): event=%v, want %v", i, n, event != nil, wantEvent[i])
		}
		if event != nil {
			if event.Meta["detector"] != DetectorCount {
				t.Errorf("Step %d: expected count detector, got %v", i, event.Meta["detector"])
			}
			if event.Meta["now"] != n {
				t.Errorf("Step %d: expected now=%d in meta, got %v", i, n, event.Meta["now"])
			}
		}
		if baseline.LastCount == nil || *baseline.LastCount != n {
			t.Errorf("Step %d: baseline count should track every observation, got %v", i, baseline.LastCount)
		}
	}
}

func TestEvaluator_CountEventFields(t *testing.T) {
	e := testEvaluator()
	src := testSource()

	baseline, _ := e.Run(src, source.ModeRequests, fp("f"), countSignal(2), "")
	src.Baseline = baseline

	_, event := e.Run(src, source.ModeRequests, fp("f"), countSignal(5), "")
	if event == nil {
		t.Fatalf("Expected count increase event")
	}
	if event.UserID != "alice" || event.SourceID != "src-1" {
		t.Errorf("Event should carry source identity, got %+v", event)
	}
	if event.Link != src.URL {
		t.Errorf("Event link should be the source URL")
	}
	if event.Meta["prev"] != 2 || event.Meta["now"] != 5 {
		t.Errorf("Expected prev=2 now=5, got %v", event.Meta)
	}
}

func TestEvaluator_ModeSwitchRebaselinesSilently(t *testing.T) {
	e := testEvaluator()
	src := testSource()

	baseline, _ := e.Run(src, source.ModeRequests, fp("f1"), countSignal(2), "")
	src.Baseline = baseline

	// Rendered fetch of the same page shows a much higher count; the mode
	// switch must absorb it without emitting.
	baseline, event := e.Run(src, source.ModeRendered, fp("f2"), countSignal(40), "")
	if event != nil {
		t.Fatalf("Mode switch must re-baseline silently, got %+v", event)
	}
	if baseline.Mode != source.ModeRendered {
		t.Errorf("Expected rendered mode recorded")
	}
	if baseline.LastCount == nil || *baseline.LastCount != 40 {
		t.Errorf("Expected new baseline count 40, got %v", baseline.LastCount)
	}

	src.Baseline = baseline
	_, event = e.Run(src, source.ModeRendered, fp("f3"), countSignal(41), "")
	if event == nil {
		t.Errorf("Increase after the re-baseline should emit again")
	}
}

func TestEvaluator_NewItemsTakePrecedenceOverCount(t *testing.T) {
	e := testEvaluator()
	src := testSource()

	sig := itemSignal("a", "b")
	sig.Count = intPtr(2)
	baseline, _ := e.Run(src, source.ModeRequests, fp("f"), sig, "")
	src.Baseline = baseline

	next := itemSignal("a", "b", "c")
	next.Count = intPtr(9)
	baseline, event := e.Run(src, source.ModeRequests, fp("f"), next, "")
	if event == nil {
		t.Fatalf("Expected new-item event")
	}
	if event.Meta["detector"] != DetectorNewKeys {
		t.Errorf("Item diffing should outrank the count, got %v", event.Meta["detector"])
	}
	if event.Meta["new"] != 1 {
		t.Errorf("Expected 1 new item, got %v", event.Meta["new"])
	}
	if baseline.LastCount == nil || *baseline.LastCount != 2 {
		t.Errorf("Count baseline must not move when item diffing claimed the check, got %v", baseline.LastCount)
	}
	if len(baseline.SeenKeys) != 3 {
		t.Errorf("New key should be folded into the seen set, got %v", baseline.SeenKeys)
	}
}

func TestEvaluator_AllItemsSeenFallsThroughToCount(t *testing.T) {
	e := testEvaluator()
	src := testSource()

	sig := itemSignal("a", "b")
	sig.Count = intPtr(2)
	baseline, _ := e.Run(src, source.ModeRequests, fp("f"), sig, "")
	src.Baseline = baseline

	next := itemSignal("a", "b")
	next.Count = intPtr(5)
	_, event := e.Run(src, source.ModeRequests, fp("f"), next, "")
	if event == nil {
		t.Fatalf("Expected count event when no item is new")
	}
	if event.Meta["detector"] != DetectorCount {
		t.Errorf("Expected count detector, got %v", event.Meta["detector"])
	}
}

func TestEvaluator_KeysAppearingMidLifeFoldSilently(t *testing.T) {
	e := testEvaluator()
	src := testSource()

	// Baseline established from a count-only signal: no seen keys stored.
	baseline, _ := e.Run(src, source.ModeRequests, fp("f"), countSignal(2), "")
	src.Baseline = baseline

	sig := itemSignal("a", "b")
	baseline, event := e.Run(src, source.ModeRequests, fp("f"), sig, "")
	if event != nil {
		t.Fatalf("First-ever keys must fold silently, got %+v", event)
	}
	if len(baseline.SeenKeys) != 2 {
		t.Errorf("Expected keys folded, got %v", baseline.SeenKeys)
	}

	src.Baseline = baseline
	_, event = e.Run(src, source.ModeRequests, fp("f"), itemSignal("a", "b", "c"), "")
	if event == nil {
		t.Errorf("Genuinely new key after the fold should emit")
	}
}

func TestEvaluator_HashChangeRequiresKeyword(t *testing.T) {
	e := testEvaluator()
	src := testSource()

	baseline, _ := e.Run(src, source.ModeRequests, fp("f"), hashSignal("h1", "boring page"), "")
	src.Baseline = baseline

	// Hash changed but no activity vocabulary: silent, baseline advances.
	baseline, event := e.Run(src, source.ModeRequests, fp("f"), hashSignal("h2", "still boring"), "")
	if event != nil {
		t.Fatalf("Hash change without keywords must not emit")
	}
	if baseline.LastHash != "h2" {
		t.Errorf("Hash baseline should advance even when silent, got %q", baseline.LastHash)
	}

	src.Baseline = baseline
	_, event = e.Run(src, source.ModeRequests, fp("f"), hashSignal("h3", "you have new messages"), "")
	if event == nil {
		t.Fatalf("Hash change with keywords should emit")
	}
	if event.Meta["detector"] != DetectorTextHash {
		t.Errorf("Expected text-hash detector, got %v", event.Meta["detector"])
	}
	if event.Message == "" {
		t.Errorf("Expected a non-empty message")
	}
}

func TestEvaluator_HashNotConsultedWhenCountPresent(t *testing.T) {
	e := testEvaluator()
	src := testSource()

	baseline, _ := e.Run(src, source.ModeRequests, fp("f"), countSignal(2), "")
	src.Baseline = baseline

	// Count unchanged, text wildly different: the count detector claims
	// the check, so the hash fallback must not fire.
	sig := countSignal(2)
	sig.Text = "completely new messages everywhere"
	sig.TextHash = "other-hash"
	_, event := e.Run(src, source.ModeRequests, fp("f"), sig, "")
	if event != nil {
		t.Errorf("Hash fallback must not run when a count is present, got %+v", event)
	}
}

func TestEvaluator_FingerprintAlwaysAdvances(t *testing.T) {
	e := testEvaluator()
	src := testSource()

	baseline, _ := e.Run(src, source.ModeRequests, fp("f1"), countSignal(2), "")
	src.Baseline = baseline

	baseline, event := e.Run(src, source.ModeRequests, fp("f2"), countSignal(2), "")
	if event != nil {
		t.Fatalf("Unchanged count should be silent")
	}
	if baseline.Fingerprint.BodyHash != "f2" {
		t.Errorf("Fingerprint should advance on every successful check, got %q", baseline.Fingerprint.BodyHash)
	}
	if baseline.Fingerprint.SavedAt.IsZero() {
		t.Errorf("Fingerprint timestamp should be set")
	}
}

func intPtr(n int) *int {
	return &n
}

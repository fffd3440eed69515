package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"webnotify/app/database"
	"webnotify/app/detect"
	"webnotify/app/signal"
)

// CheckSourceTask performs one full check of a source: fetch, signal
// extraction, change evaluation, and persistence of the advanced
// baseline plus any detected notification.
type CheckSourceTask struct {
	Task
	SourceID   string
	fetcher    FetcherInterface
	extractor  *signal.Extractor
	evaluator  *detect.Evaluator
	sourceRepo database.SourceRepository
	notifRepo  database.NotificationRepository
}

func NewCheckSourceTask(sourceID, sourceName string, fetcher FetcherInterface,
	extractor *signal.Extractor, evaluator *detect.Evaluator,
	sourceRepo database.SourceRepository, notifRepo database.NotificationRepository) *CheckSourceTask {
	return &CheckSourceTask{
		Task:       NewTask(TaskTypeCheckSource, sourceName),
		SourceID:   sourceID,
		fetcher:    fetcher,
		extractor:  extractor,
		evaluator:  evaluator,
		sourceRepo: sourceRepo,
		notifRepo:  notifRepo,
	}
}

func (t *CheckSourceTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	src, err := t.sourceRepo.GetSource(t.SourceID)
	if err != nil {
		return fmt.Errorf("failed to load source: %w", err)
	}
	if src == nil || !src.Enabled {
		slog.Debug("Source missing or disabled, skipping", "source", t.SourceName)
		return nil
	}

	now := time.Now().UTC()

	result, err := t.fetcher.Fetch(ctx, src)
	if err != nil {
		// Fetch failures are an expected steady state for pages behind
		// logins and bot checks. Record the attempt and move on; the
		// baseline stays untouched so the next success compares against
		// the last good state.
		slog.Warn("Fetch failed", "source", src.Name, "error", err)
		if touchErr := t.sourceRepo.TouchLastChecked(src.ID, now); touchErr != nil {
			return fmt.Errorf("failed to record check time: %w", touchErr)
		}
		return nil
	}

	if result.NotModified {
		slog.Debug("Source not modified", "source", src.Name)
		if err := t.sourceRepo.TouchLastChecked(src.ID, now); err != nil {
			return fmt.Errorf("failed to record check time: %w", err)
		}
		return nil
	}

	sig, err := t.extractor.Run(result.HTML, src.URL)
	if err != nil {
		slog.Warn("Signal extraction failed", "source", src.Name, "error", err)
		if touchErr := t.sourceRepo.TouchLastChecked(src.ID, now); touchErr != nil {
			return fmt.Errorf("failed to record check time: %w", touchErr)
		}
		return nil
	}

	if result.ShortHTML != "" && result.ShortHTML != result.HTML {
		if earlySig, earlyErr := t.extractor.Run(result.ShortHTML, src.URL); earlyErr == nil {
			sig = signal.Merge(sig, earlySig)
		}
	}

	baseline, event := t.evaluator.Run(src, result.Mode, result.Fingerprint, sig, result.HTML)

	if event != nil {
		notification := &database.Notification{
			ID:         uuid.NewString(),
			UserID:     event.UserID,
			SourceID:   event.SourceID,
			Title:      event.Title,
			Message:    event.Message,
			Link:       event.Link,
			DetectedAt: event.DetectedAt,
			Meta:       event.Meta,
		}
		if err := t.notifRepo.Create(notification); err != nil {
			return fmt.Errorf("failed to store notification: %w", err)
		}
	}

	if err := t.sourceRepo.CommitCheck(src.ID, baseline, now); err != nil {
		return fmt.Errorf("failed to commit baseline: %w", err)
	}

	if src.Config.Debug {
		slog.Info("Check details",
			"source", src.Name,
			"mode", string(result.Mode),
			"count", countValue(sig),
			"items", len(sig.Items),
			"hash", shortHash(sig.TextHash))
	}

	slog.Info("Task completed",
		"type", "CheckSource",
		"source", src.Name,
		"duration", t.GetDuration(),
		"detected", event != nil)

	return nil
}

func countValue(sig *signal.Signal) any {
	if sig.Count == nil {
		return nil
	}
	return *sig.Count
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

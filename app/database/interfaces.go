package database

import (
	"time"

	"webnotify/app/source"
)

type SourceRepository interface {
	GetSource(id string) (*source.Source, error)
	GetEnabledSources() ([]source.Source, error)
	GetSources(userID string) ([]source.Source, error)
	GetSourceCount() (int, error)

	CreateSource(src *source.Source) error
	UpsertSeed(seed source.Seed) (string, error)

	// CommitCheck atomically writes the new baseline and advances
	// last_checked in a single statement.
	CommitCheck(id string, baseline source.Baseline, checkedAt time.Time) error

	// TouchLastChecked advances only the last_checked timestamp; used when a
	// fetch fails or reports 304, so the baseline stays untouched.
	TouchLastChecked(id string, checkedAt time.Time) error
}

type NotificationRepository interface {
	Create(n *Notification) error
	ListRecent(userID string, unplayedOnly bool, limit, offset int) ([]Notification, error)
	GetActive(userID string) (*Notification, error)
	MarkRead(userID string, ids []string, played bool) (int64, error)
	ClearAll(userID string) (int64, error)
	DeleteAll(userID string, olderThan *time.Time) (int64, error)
	GetNotificationCount() (int, error)
}

package database

import (
	"time"
)

// Notification is one detected activity event, as stored.
type Notification struct {
	ID         string
	UserID     string
	SourceID   string
	SourceName string // joined from sources, empty when the source was deleted
	Title      string
	Message    string
	Link       string
	DetectedAt time.Time
	Seen       bool
	Played     bool
	Meta       map[string]any
}

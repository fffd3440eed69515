package detect

import (
	"time"
)

// Detector names recorded in event metadata.
const (
	DetectorNewKeys  = "new-keys"
	DetectorCount    = "count"
	DetectorTextHash = "text-hash"
)

// Event is one decided piece of new activity, ready to be stored as a
// notification. At most one is produced per check of a source.
type Event struct {
	UserID     string
	SourceID   string
	Title      string
	Message    string
	Link       string
	DetectedAt time.Time
	Meta       map[string]any
}

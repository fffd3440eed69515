package source

import (
	"time"
)

// Fetch modes. A source's baseline records the mode that produced it;
// a mode change forces a silent re-baseline on the next check.
type Mode string

const (
	ModeRequests Mode = "requests"
	ModeRendered Mode = "rendered"
)

// SeenKeyCap bounds the per-source set of previously observed item keys.
const SeenKeyCap = 500

// Config holds per-source overrides. Every field has a working default,
// so an empty config is a valid HTTP-mode source.
type Config struct {
	Mode    Mode              `yaml:"mode" json:"mode,omitempty"`
	Cookies map[string]string `yaml:"cookies" json:"cookies,omitempty"`
	Headers map[string]string `yaml:"headers" json:"headers,omitempty"`

	// TimeoutSeconds overrides the HTTP read timeout. Connect timeout is
	// derived from it (half, floor 2s).
	TimeoutSeconds int `yaml:"timeout" json:"timeout,omitempty"`

	// CheckIntervalSeconds overrides how often the scheduler considers
	// this source due. Zero means the global scheduler interval.
	CheckIntervalSeconds int `yaml:"check_interval" json:"check_interval,omitempty"`

	// Rendered-mode knobs.
	RenderWaitMs      int    `yaml:"render_wait_ms" json:"render_wait_ms,omitempty"`             // stable render quiet period, default 3000
	ShortRenderWaitMs int    `yaml:"short_render_wait_ms" json:"short_render_wait_ms,omitempty"` // early snapshot quiet period, default 400
	WaitSelector      string `yaml:"wait_selector" json:"wait_selector,omitempty"`
	ClickSelector     string `yaml:"click_selector" json:"click_selector,omitempty"`
	ScrollCount       int    `yaml:"scroll_count" json:"scroll_count,omitempty"`
	ProfileDir        string `yaml:"profile_dir" json:"profile_dir,omitempty"`
	Headless          *bool  `yaml:"headless" json:"headless,omitempty"`

	Debug bool `yaml:"debug" json:"debug,omitempty"`
}

// EffectiveMode resolves the configured fetch mode, defaulting to requests.
func (c *Config) EffectiveMode() Mode {
	if c.Mode == ModeRendered {
		return ModeRendered
	}
	return ModeRequests
}

// Timeouts returns the connect and read timeouts for HTTP fetches.
// Defaults: connect 5s, read 8s. An explicit timeout override sets
// read to max(5,t) and connect to max(2,t/2).
func (c *Config) Timeouts() (connect, read time.Duration) {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second, 8 * time.Second
	}
	readSec := c.TimeoutSeconds
	if readSec < 5 {
		readSec = 5
	}
	connectSec := c.TimeoutSeconds / 2
	if connectSec < 2 {
		connectSec = 2
	}
	return time.Duration(connectSec) * time.Second, time.Duration(readSec) * time.Second
}

// CheckInterval returns the per-source check interval, falling back to
// fallback when no override is configured.
func (c *Config) CheckInterval(fallback time.Duration) time.Duration {
	if c.CheckIntervalSeconds <= 0 {
		return fallback
	}
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// RenderWait returns the stable-render quiet period.
func (c *Config) RenderWait() time.Duration {
	if c.RenderWaitMs <= 0 {
		return 3000 * time.Millisecond
	}
	return time.Duration(c.RenderWaitMs) * time.Millisecond
}

// ShortRenderWait returns the early-snapshot quiet period used to catch
// transient badges before client JS settles.
func (c *Config) ShortRenderWait() time.Duration {
	if c.ShortRenderWaitMs <= 0 {
		return 400 * time.Millisecond
	}
	return time.Duration(c.ShortRenderWaitMs) * time.Millisecond
}

// Fingerprint is the transport-level change indicator of the last
// successful fetch. Rendered fetches carry only a body hash.
type Fingerprint struct {
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	BodyHash     string    `json:"body_hash,omitempty"`
	SavedAt      time.Time `json:"saved_at,omitempty"`
}

// IsZero reports whether no fetch has ever been fingerprinted.
func (f Fingerprint) IsZero() bool {
	return f.ETag == "" && f.LastModified == "" && f.BodyHash == ""
}

// Baseline is the evaluator's memory of what a source looked like on the
// last check. Fields belonging to detection strategies that did not run
// are left untouched between checks, never cleared.
type Baseline struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	LastCount   *int        `json:"last_count,omitempty"`
	LastHash    string      `json:"last_hash,omitempty"`
	SeenKeys    []string    `json:"seen_keys,omitempty"`
	Mode        Mode        `json:"mode,omitempty"`
}

// Initialized reports whether any prior state has been recorded.
func (b *Baseline) Initialized() bool {
	return !b.Fingerprint.IsZero() || b.LastCount != nil || b.LastHash != "" || len(b.SeenKeys) > 0
}

// SeenKeySet returns the stored keys as a lookup set.
func (b *Baseline) SeenKeySet() map[string]struct{} {
	set := make(map[string]struct{}, len(b.SeenKeys))
	for _, k := range b.SeenKeys {
		set[k] = struct{}{}
	}
	return set
}

// FoldSeenKeys merges newly observed keys into the stored set, dropping the
// oldest entries once the cap is exceeded.
func (b *Baseline) FoldSeenKeys(keys []string) {
	seen := b.SeenKeySet()
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		b.SeenKeys = append(b.SeenKeys, k)
	}
	if len(b.SeenKeys) > SeenKeyCap {
		b.SeenKeys = b.SeenKeys[len(b.SeenKeys)-SeenKeyCap:]
	}
}

// Source is one monitored page/account belonging to a user.
type Source struct {
	ID          string
	UserID      string
	Name        string
	URL         string
	Enabled     bool
	Config      Config
	Baseline    Baseline
	LastChecked *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

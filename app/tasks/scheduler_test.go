package tasks

import (
	"testing"
	"time"

	"webnotify/app/source"
)

func TestSourceDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fallback := 60 * time.Second

	checked := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}

	tests := []struct {
		name     string
		src      *source.Source
		expected bool
	}{
		{
			name:     "never checked",
			src:      &source.Source{},
			expected: true,
		},
		{
			name:     "checked longer than interval ago",
			src:      &source.Source{LastChecked: checked(90 * time.Second)},
			expected: true,
		},
		{
			name:     "checked within interval",
			src:      &source.Source{LastChecked: checked(30 * time.Second)},
			expected: false,
		},
		{
			name: "per-source override extends the interval",
			src: &source.Source{
				LastChecked: checked(90 * time.Second),
				Config:      source.Config{CheckIntervalSeconds: 300},
			},
			expected: false,
		},
		{
			name: "per-source override shortens the interval",
			src: &source.Source{
				LastChecked: checked(15 * time.Second),
				Config:      source.Config{CheckIntervalSeconds: 10},
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sourceDue(tt.src, fallback, now); got != tt.expected {
				t.Errorf("Expected due=%v, got %v", tt.expected, got)
			}
		})
	}
}

package tasks

import (
	"context"

	"webnotify/app/fetch"
	"webnotify/app/source"
)

// TaskSchedulerInterface defines the interface for background task
// scheduling. The main application starts it once and the API uses it to
// enqueue on-demand source checks.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	EnqueueCheck(sourceID, sourceName string) error
}

// FetcherInterface abstracts page retrieval so check tasks can be tested
// without touching the network or a browser.
type FetcherInterface interface {
	Fetch(ctx context.Context, src *source.Source) (*fetch.Result, error)
}

package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"webnotify/app/cfg"
	"webnotify/app/database"
	"webnotify/app/detect"
	"webnotify/app/signal"
	"webnotify/app/source"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	sourceRepo  database.SourceRepository
	notifRepo   database.NotificationRepository
	fetcher     FetcherInterface
	extractor   *signal.Extractor
	evaluator   *detect.Evaluator
	interval    time.Duration
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
}

func NewScheduler(sourceRepo database.SourceRepository, notifRepo database.NotificationRepository,
	fetcher FetcherInterface, extractor *signal.Extractor, evaluator *detect.Evaluator) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		sourceRepo:  sourceRepo,
		notifRepo:   notifRepo,
		fetcher:     fetcher,
		extractor:   extractor,
		evaluator:   evaluator,
		interval:    time.Duration(cfg.SchedulerInterval) * time.Second,
		workerCount: cfg.WorkerCount,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueCheckTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueCheckTasks()
			}
		}
	}()

}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// EnqueueCheck schedules an immediate check of a single source,
// bypassing the ticker. Used by the API's on-demand check endpoint.
func (s *Scheduler) EnqueueCheck(sourceID, sourceName string) error {
	task := NewCheckSourceTask(sourceID, sourceName, s.fetcher, s.extractor, s.evaluator, s.sourceRepo, s.notifRepo)
	return s.EnqueueTask(task)
}

func (s *Scheduler) enqueueCheckTasks() {
	sources, err := s.sourceRepo.GetEnabledSources()
	if err != nil {
		slog.Error("Failed to load enabled sources", "error", err)
		return
	}
	if len(sources) == 0 {
		slog.Debug("No enabled sources found")
		return
	}

	now := time.Now().UTC()
	due := 0
	for _, src := range sources {
		if !sourceDue(&src, s.interval, now) {
			continue
		}
		due++
		task := NewCheckSourceTask(src.ID, src.Name, s.fetcher, s.extractor, s.evaluator, s.sourceRepo, s.notifRepo)
		if err := s.EnqueueTask(task); err != nil {
			slog.Warn("Failed to enqueue CheckSourceTask", "source", src.Name, "error", err)
		}
	}

	slog.Debug("Scheduling source checks", "enabled", len(sources), "due", due)
}

// sourceDue reports whether a source's last check is older than its check
// interval. Never-checked sources are always due.
func sourceDue(src *source.Source, fallback time.Duration, now time.Time) bool {
	if src.LastChecked == nil {
		return true
	}
	return now.Sub(*src.LastChecked) >= src.Config.CheckInterval(fallback)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "source", task.GetSourceName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					if retryErr := s.EnqueueTask(task); retryErr != nil {
						slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
					}
				}
			}()
		} else {
			slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		}
	}
}

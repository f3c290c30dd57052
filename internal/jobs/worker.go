package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kopesha/kopesha-api/pkg/logger"
)

// Job is a unit of background work, such as sending a notification or
// sweeping stale M-Pesa transactions
type Job func(ctx context.Context) error

// Worker runs background jobs for the loan pipeline. Queued jobs go through
// a fixed pool, fire-and-forget jobs run in their own goroutines behind a
// semaphore, and recurring jobs (arrears scans, campaign dispatch, payment
// reminders) run on tickers. Shutdown waits for everything in flight.
type Worker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	queue    chan Job
	asyncSem chan struct{}

	mu    sync.RWMutex
	stats WorkerStats
}

// WorkerStats is a snapshot of the worker's counters
type WorkerStats struct {
	ActiveJobs    int   `json:"active_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	FailedJobs    int64 `json:"failed_jobs"`
	QueueLength   int   `json:"queue_length"`
	MaxConcurrent int   `json:"max_concurrent"`
}

// NewWorker starts a pool of numWorkers queue processors. Async jobs get
// twice that headroom, with a floor of 10, since notification fan-out
// spikes around disbursements.
func NewWorker(numWorkers int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	asyncLimit := numWorkers * 2
	if asyncLimit < 10 {
		asyncLimit = 10
	}

	w := &Worker{
		ctx:      ctx,
		cancel:   cancel,
		queue:    make(chan Job, 100),
		asyncSem: make(chan struct{}, asyncLimit),
	}
	w.stats.MaxConcurrent = asyncLimit

	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.drain(i)
	}

	return w
}

// Enqueue hands a job to the pool. A full queue degrades to running the job
// inline rather than dropping it.
func (w *Worker) Enqueue(job Job) {
	select {
	case w.queue <- job:
	default:
		logger.Warn("[Worker] Queue full, running job synchronously")
		w.runJob("Worker", job)
	}
}

// EnqueueAsync runs a job in its own goroutine, bounded by the semaphore.
// Used for per-event work like client notifications where queue ordering
// does not matter.
func (w *Worker) EnqueueAsync(job Job) {
	go func() {
		w.asyncSem <- struct{}{}
		defer func() { <-w.asyncSem }()

		w.wg.Add(1)
		defer w.wg.Done()

		w.runJob("Worker async", job)
	}()
}

// drain processes queued jobs until shutdown
func (w *Worker) drain(workerID int) {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case job, ok := <-w.queue:
			if !ok {
				return
			}
			w.runJob(fmt.Sprintf("Worker %d", workerID), job)
		}
	}
}

// ScheduleEvery runs a job on a fixed interval, first firing one interval
// after startup
func (w *Worker) ScheduleEvery(interval time.Duration, job Job) {
	w.schedule(interval, job, false)
}

// ScheduleEveryImmediate runs a job once at startup and then on the
// interval. Used for cache warm-up style jobs that must not wait out the
// first interval after a redeploy.
func (w *Worker) ScheduleEveryImmediate(interval time.Duration, job Job) {
	w.schedule(interval, job, true)
}

func (w *Worker) schedule(interval time.Duration, job Job, immediate bool) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if immediate {
			w.runJob("Scheduler", job)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.runJob("Scheduler", job)
			}
		}
	}()
}

// runJob executes one job with panic recovery and counter upkeep
func (w *Worker) runJob(source string, job Job) {
	w.jobStarted()
	defer w.jobFinished()
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Sprintf("[%s] Job panic: %v", source, r))
			w.jobFailed()
		}
	}()

	start := time.Now()
	if err := job(w.ctx); err != nil {
		logger.Error(fmt.Sprintf("[%s] Job error: %v", source, err))
		w.jobFailed()
		return
	}
	logger.Info(fmt.Sprintf("[%s] Job completed in %v", source, time.Since(start)))
}

// Shutdown stops accepting work and waits for running jobs
func (w *Worker) Shutdown() {
	w.cancel()
	close(w.queue)
	w.wg.Wait()
}

// Context returns the worker's lifecycle context
func (w *Worker) Context() context.Context {
	return w.ctx
}

// GetStats returns a snapshot of the worker counters
func (w *Worker) GetStats() WorkerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	stats := w.stats
	stats.QueueLength = len(w.queue)
	return stats
}

func (w *Worker) jobStarted() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.ActiveJobs++
}

// jobFinished counts every finished job; FailedJobs is the failing subset
func (w *Worker) jobFinished() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.ActiveJobs--
	w.stats.CompletedJobs++
}

func (w *Worker) jobFailed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.FailedJobs++
}

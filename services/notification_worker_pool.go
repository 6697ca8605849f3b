// Package services holds the submission pipeline and the collaborators it
// drives: rate limiters, mailers, the notification worker pool and health checks.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matrix-portfolio/portfolio-api/config"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const defaultJobTimeout = 30 * time.Second

// Job is a unit of detached work, such as sending a notification email.
type Job struct {
	// Name is used for logging only.
	Name    string
	Execute func(ctx context.Context) error
}

// WorkerPool runs jobs on a fixed set of workers fed by a bounded queue.
// Jobs never see the submitter's request context: each gets a fresh context
// bounded by the job timeout, so a client disconnect cannot cancel them.
type WorkerPool struct {
	jobQueue   chan Job
	wg         sync.WaitGroup
	baseCtx    context.Context
	abort      context.CancelFunc
	logger     *zap.SugaredLogger
	metrics    *workerPoolMetrics
	config     config.WorkerPoolConfig
	jobTimeout time.Duration
	mu         sync.RWMutex
	running    bool
	closed     bool
}

type workerPoolMetrics struct {
	queueDepth    prometheus.Gauge
	activeWorkers prometheus.Gauge
	completedJobs prometheus.Counter
	droppedJobs   prometheus.Counter
	errorCount    prometheus.Counter
	jobDuration   prometheus.Histogram
}

// Metrics are process-wide; the singleton avoids duplicate registration when
// several pools are built in one process (tests).
var (
	wpMetricsInstance *workerPoolMetrics
	wpMetricsOnce     sync.Once
	wpDefaultRegistry = prometheus.DefaultRegisterer
)

func newWorkerPoolMetrics() *workerPoolMetrics {
	wpMetricsOnce.Do(func() {
		f := promauto.With(wpDefaultRegistry)
		wpMetricsInstance = &workerPoolMetrics{
			queueDepth: f.NewGauge(prometheus.GaugeOpts{
				Name: "portfolio_notification_queue_depth",
				Help: "Current number of notification jobs waiting in queue",
			}),
			activeWorkers: f.NewGauge(prometheus.GaugeOpts{
				Name: "portfolio_notification_active_workers",
				Help: "Current number of workers sending notifications",
			}),
			completedJobs: f.NewCounter(prometheus.CounterOpts{
				Name: "portfolio_notification_jobs_completed_total",
				Help: "Total number of notification jobs that ran to completion",
			}),
			droppedJobs: f.NewCounter(prometheus.CounterOpts{
				Name: "portfolio_notification_jobs_dropped_total",
				Help: "Total number of notification jobs dropped because the queue was full or closed",
			}),
			errorCount: f.NewCounter(prometheus.CounterOpts{
				Name: "portfolio_notification_job_errors_total",
				Help: "Total number of notification jobs that returned an error",
			}),
			jobDuration: f.NewHistogram(prometheus.HistogramOpts{
				Name:    "portfolio_notification_job_duration_seconds",
				Help:    "Time taken to execute notification jobs",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			}),
		}
	})
	return wpMetricsInstance
}

// resetWorkerPoolMetricsForTesting points the metrics at a fresh registry.
func resetWorkerPoolMetricsForTesting() {
	wpDefaultRegistry = prometheus.NewRegistry()
	wpMetricsInstance = nil
	wpMetricsOnce = sync.Once{}
}

// NewWorkerPool creates a pool. Call Start before submitting jobs.
func NewWorkerPool(cfg config.WorkerPoolConfig) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	jobTimeout := time.Duration(cfg.JobTimeoutSeconds) * time.Second
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}

	ctx, abort := context.WithCancel(context.Background())
	return &WorkerPool{
		jobQueue:   make(chan Job, cfg.QueueSize),
		baseCtx:    ctx,
		abort:      abort,
		logger:     logger.GetLogger().Named("worker-pool"),
		metrics:    newWorkerPoolMetrics(),
		config:     cfg,
		jobTimeout: jobTimeout,
	}
}

// Start launches the workers. Repeated calls are no-ops.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running || wp.closed {
		wp.logger.Warn("Worker pool already started")
		return
	}
	wp.running = true

	wp.logger.Infow("Starting worker pool",
		"maxWorkers", wp.config.MaxWorkers,
		"queueSize", wp.config.QueueSize,
		"jobTimeout", wp.jobTimeout)

	for i := 0; i < wp.config.MaxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// worker drains the queue until it is closed.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	wp.logger.Debugw("Worker started", "workerId", id)

	for job := range wp.jobQueue {
		wp.executeJob(id, job)
	}
	wp.logger.Debugw("Worker stopping (queue closed)", "workerId", id)
}

func (wp *WorkerPool) executeJob(workerID int, job Job) {
	wp.metrics.activeWorkers.Inc()
	wp.metrics.queueDepth.Dec()
	defer wp.metrics.activeWorkers.Dec()

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(wp.baseCtx, wp.jobTimeout)
	defer cancel()

	err := wp.run(jobCtx, job)
	duration := time.Since(start)
	if err != nil {
		wp.logger.Errorw("Job execution failed",
			"job", job.Name,
			"workerId", workerID,
			"error", err,
			"duration", duration)
		wp.metrics.errorCount.Inc()
	} else {
		wp.logger.Debugw("Job completed",
			"job", job.Name,
			"workerId", workerID,
			"duration", duration)
	}

	wp.metrics.jobDuration.Observe(duration.Seconds())
	wp.metrics.completedJobs.Inc()
}

// run executes job, converting a panic into an error so one bad job cannot
// take a worker down.
func (wp *WorkerPool) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errPanic{value: r}
		}
	}()
	return job.Execute(ctx)
}

type errPanic struct{ value any }

func (e errPanic) Error() string { return fmt.Sprintf("job panicked: %v", e.value) }

// Submit queues job without blocking. It returns false when the queue is full
// or the pool is not running; the job is then dropped and counted.
func (wp *WorkerPool) Submit(job Job) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		wp.metrics.droppedJobs.Inc()
		wp.logger.Warnw("Job dropped - pool not running", "job", job.Name)
		return false
	}

	select {
	case wp.jobQueue <- job:
		wp.metrics.queueDepth.Inc()
		wp.logger.Debugw("Job submitted", "job", job.Name)
		return true
	default:
		wp.metrics.droppedJobs.Inc()
		wp.logger.Warnw("Job dropped - queue full",
			"job", job.Name,
			"queueSize", wp.config.QueueSize)
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued and in-flight jobs to
// finish. If ctx expires first, running jobs are cancelled and ctx.Err() is
// returned.
func (wp *WorkerPool) Shutdown(ctx context.Context) error {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return nil
	}
	wp.running = false
	wp.closed = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.logger.Infow("Draining worker pool", "queued", len(wp.jobQueue))

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.abort()
		wp.logger.Info("Worker pool shutdown complete - all jobs finished")
		return nil
	case <-ctx.Done():
		wp.abort()
		wp.logger.Warn("Worker pool shutdown timed out - remaining jobs were cancelled")
		return ctx.Err()
	}
}

// QueueDepth returns the number of jobs waiting in the queue.
func (wp *WorkerPool) QueueDepth() int {
	return len(wp.jobQueue)
}

// IsRunning reports whether the pool accepts jobs.
func (wp *WorkerPool) IsRunning() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.running
}

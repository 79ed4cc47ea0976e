package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Submit once shutdown has started.
var ErrPoolClosed = errors.New("worker pool is shut down")

// DefaultJobTimeout bounds a job when the pool is built without one.
const DefaultJobTimeout = 2 * time.Minute

var (
	jobTracer          = otel.Tracer("balance/scheduler")
	jobMeter           = otel.Meter("balance/scheduler")
	jobDuration, _     = jobMeter.Float64Histogram("scheduler.job.duration", metric.WithDescription("Job execution duration in seconds"), metric.WithUnit("s"))
	jobTotal, _        = jobMeter.Int64Counter("scheduler.job.total", metric.WithDescription("Total jobs executed by status"))
	jobQueueDropped, _ = jobMeter.Int64Counter("scheduler.job.queue_dropped", metric.WithDescription("Jobs dropped due to full queue"))
)

// WorkerPool manages a pool of concurrent workers that process jobs.
type WorkerPool struct {
	workerCount int
	jobDelay    time.Duration
	jobTimeout  time.Duration
	jobs        chan Job
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger

	// mu guards closed so Submit never sends on a closed queue.
	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a new worker pool.
// jobDelay is waited by a worker between two jobs to stay under exchange rate limits.
func NewWorkerPool(workerCount int, jobDelay, jobTimeout time.Duration, queueSize int, logger *zap.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}

	return &WorkerPool{
		workerCount: workerCount,
		jobDelay:    jobDelay,
		jobTimeout:  jobTimeout,
		jobs:        make(chan Job, queueSize),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Named("worker_pool"),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	wp.logger.Info("starting worker pool", zap.Int("workers", wp.workerCount))

	for i := 1; i <= wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	logger := wp.logger.With(zap.Int("worker", id))
	logger.Debug("worker started")

	for {
		select {
		case <-wp.ctx.Done():
			logger.Debug("worker shutting down")
			return

		case job, ok := <-wp.jobs:
			if !ok {
				logger.Debug("job channel closed")
				return
			}

			wp.processJob(id, job)

			if wp.jobDelay > 0 {
				select {
				case <-time.After(wp.jobDelay):
				case <-wp.ctx.Done():
					logger.Debug("worker shutting down during delay")
					return
				}
			}
		}
	}
}

// processJob executes a single job with a timeout, logging and telemetry.
func (wp *WorkerPool) processJob(workerID int, job Job) {
	logger := wp.logger.With(
		zap.Int("worker", workerID),
		zap.String("job", job.Description()),
		zap.String("key", job.Key()),
	)
	logger.Info("processing job")

	ctx, cancel := context.WithTimeout(wp.ctx, wp.jobTimeout)
	defer cancel()

	ctx, span := jobTracer.Start(ctx, "job.execute",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("job.description", job.Description()),
			attribute.String("job.key", job.Key()),
		),
	)
	defer span.End()

	start := time.Now()

	if err := job.Execute(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		jobDuration.Record(ctx, time.Since(start).Seconds())
		logger.Error("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}

	jobTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))
	jobDuration.Record(ctx, time.Since(start).Seconds())
	logger.Info("job completed", zap.Duration("duration", time.Since(start)))
}

// Submit adds a job to the queue without blocking.
// A full queue drops the job and returns an error.
func (wp *WorkerPool) Submit(job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	case wp.jobs <- job:
		return nil
	default:
		jobQueueDropped.Add(context.Background(), 1)
		wp.logger.Warn("job queue full, dropping job", zap.String("key", job.Key()))
		return fmt.Errorf("job queue full, dropping job for %s", job.Key())
	}
}

// SubmitBatch submits jobs one by one and returns how many were queued.
func (wp *WorkerPool) SubmitBatch(jobs []Job) int {
	submitted := 0
	for _, job := range jobs {
		if err := wp.Submit(job); err != nil {
			wp.logger.Warn("failed to submit job", zap.String("key", job.Key()), zap.Error(err))
			continue
		}
		submitted++
	}
	wp.logger.Info("submitted jobs", zap.Int("submitted", submitted), zap.Int("total", len(jobs)))
	return submitted
}

// ShutdownWithTimeout closes the queue and waits for workers to drain it.
// Running jobs are cancelled when the timeout is reached.
func (wp *WorkerPool) ShutdownWithTimeout(timeout time.Duration) {
	wp.logger.Info("shutting down worker pool", zap.Duration("timeout", timeout))

	wp.mu.Lock()
	if !wp.closed {
		wp.closed = true
		close(wp.jobs)
	}
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Info("all workers finished")
	case <-time.After(timeout):
		wp.logger.Warn("shutdown timeout reached, cancelling running jobs")
		wp.cancel()
		<-done
	}
	wp.cancel()
}

package queue

import (
	"sync"

	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/models"
)

// AuditJob carries one audit record to the persistence workers
type AuditJob struct {
	Record models.AuditRecord
}

// JobQueue manages the job queue with a channel-based system
type JobQueue struct {
	jobs chan *AuditJob
	done chan struct{}
	mu   sync.RWMutex
}

// NewJobQueue creates a new job queue with the specified buffer size
func NewJobQueue(bufferSize int) *JobQueue {
	return &JobQueue{
		jobs: make(chan *AuditJob, bufferSize),
		done: make(chan struct{}),
	}
}

// Enqueue adds a job to the queue without blocking. A full queue drops the
// job and returns ErrQueueFull.
func (jq *JobQueue) Enqueue(job *AuditJob) error {
	jq.mu.RLock()
	defer jq.mu.RUnlock()

	select {
	case <-jq.done:
		logger.WithFields(map[string]interface{}{
			"event_id":  job.Record.EventID,
			"server_id": job.Record.ServerID,
		}).Warn("Failed to enqueue audit job: queue is closed")
		return ErrQueueClosed
	default:
	}

	select {
	case jq.jobs <- job:
		logger.WithFields(map[string]interface{}{
			"event_id":  job.Record.EventID,
			"server_id": job.Record.ServerID,
			"type":      job.Record.Type,
		}).Debug("Audit job enqueued")
		return nil
	default:
		logger.WithFields(map[string]interface{}{
			"event_id":  job.Record.EventID,
			"server_id": job.Record.ServerID,
		}).Warn("Dropping audit job: queue is full")
		return ErrQueueFull
	}
}

// Dequeue retrieves the next job from the queue
// Returns nil if the queue is closed
func (jq *JobQueue) Dequeue() *AuditJob {
	return <-jq.jobs
}

// Jobs returns the underlying channel for job consumption
func (jq *JobQueue) Jobs() <-chan *AuditJob {
	return jq.jobs
}

// Len returns the number of jobs waiting
func (jq *JobQueue) Len() int {
	return len(jq.jobs)
}

// Close closes the queue. Jobs already queued stay readable.
func (jq *JobQueue) Close() {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	select {
	case <-jq.done:
		return // Already closed
	default:
		close(jq.done)
		close(jq.jobs)
	}
}

// WorkerPool manages multiple workers processing jobs
type WorkerPool struct {
	queue   *JobQueue
	workers int
	jobs    <-chan *AuditJob
	wg      sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue *JobQueue, numWorkers int) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool{
		queue:   queue,
		workers: numWorkers,
		jobs:    queue.Jobs(),
		done:    make(chan struct{}),
	}
}

// Start starts all workers
func (wp *WorkerPool) Start(handler func(*AuditJob) error) {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(handler)
	}
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(handler func(*AuditJob) error) {
	defer wp.wg.Done()

	for {
		select {
		case job, ok := <-wp.jobs:
			if !ok {
				logger.Debug("Worker exiting: jobs channel closed")
				return
			}
			if job == nil {
				continue
			}
			if err := handler(job); err != nil {
				logger.WithFields(map[string]interface{}{
					"event_id":  job.Record.EventID,
					"server_id": job.Record.ServerID,
					"error":     err.Error(),
				}).Error("Worker failed to process audit job")
			}
		case <-wp.done:
			logger.Debug("Worker exiting: stop signal received")
			return
		}
	}
}

// Stop signals workers to exit without draining the queue
func (wp *WorkerPool) Stop() {
	wp.once.Do(func() { close(wp.done) })
	wp.wg.Wait()
}

// Wait waits for all workers to finish. Workers finish once the queue is
// closed and drained.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

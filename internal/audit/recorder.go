// Package audit turns bus events into persisted audit records.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/imyashkale/fleetctl/internal/events"
	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/models"
	"github.com/imyashkale/fleetctl/internal/queue"
	"github.com/imyashkale/fleetctl/internal/repository"
)

const (
	DefaultWorkers     = 2
	DefaultQueueSize   = 1024
	DefaultSaveTimeout = 5 * time.Second
)

// Options configures a Recorder
type Options struct {
	Workers   int
	QueueSize int
	// IncludeConsole also records consoleLine events
	IncludeConsole bool
	SaveTimeout    time.Duration
}

// Recorder consumes the bus topic and persists audit records through a
// worker pool
type Recorder struct {
	bus  *events.Bus
	repo repository.AuditRepository
	opts Options

	queue *queue.JobQueue
	pool  *queue.WorkerPool

	mu      sync.Mutex
	cancel  context.CancelFunc
	loop    chan struct{}
	stopped bool
}

// NewRecorder creates a recorder writing to repo
func NewRecorder(bus *events.Bus, repo repository.AuditRepository, opts Options) *Recorder {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}

	jq := queue.NewJobQueue(opts.QueueSize)
	return &Recorder{
		bus:   bus,
		repo:  repo,
		opts:  opts,
		queue: jq,
		pool:  queue.NewWorkerPool(jq, opts.Workers),
	}
}

// Start subscribes to the bus topic and starts the workers
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loop != nil || r.stopped {
		return errors.New("audit recorder already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	msgs, err := r.bus.SubscribeTopic(ctx)
	if err != nil {
		cancel()
		return err
	}

	r.cancel = cancel
	r.loop = make(chan struct{})
	r.pool.Start(r.persist)
	go r.consume(msgs)

	logger.WithFields(map[string]interface{}{
		"workers":         r.opts.Workers,
		"include_console": r.opts.IncludeConsole,
	}).Info("Audit recorder started")
	return nil
}

func (r *Recorder) consume(msgs <-chan *message.Message) {
	defer close(r.loop)

	for msg := range msgs {
		rec, ok := r.toRecord(msg)
		msg.Ack()
		if !ok {
			continue
		}
		_ = r.queue.Enqueue(&queue.AuditJob{Record: rec})
	}
}

// toRecord converts a topic message; ok is false for messages that are
// not recorded
func (r *Recorder) toRecord(msg *message.Message) (models.AuditRecord, bool) {
	var evt struct {
		ID        string          `json:"id"`
		ServerID  string          `json:"server_id"`
		Type      string          `json:"type"`
		Payload   json.RawMessage `json:"payload"`
		Timestamp time.Time       `json:"timestamp"`
	}
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		logger.WithFields(map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		}).Warn("Skipping undecodable audit message")
		return models.AuditRecord{}, false
	}

	if models.EventType(evt.Type) == models.EventConsoleLine && !r.opts.IncludeConsole {
		return models.AuditRecord{}, false
	}

	return models.AuditRecord{
		EventID:   evt.ID,
		ServerID:  evt.ServerID,
		Type:      evt.Type,
		Detail:    string(evt.Payload),
		Timestamp: evt.Timestamp,
	}, true
}

func (r *Recorder) persist(job *queue.AuditJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.SaveTimeout)
	defer cancel()
	return r.repo.Save(ctx, job.Record)
}

// History returns recent audit records for a server, newest first
func (r *Recorder) History(ctx context.Context, serverID string, limit int) ([]models.AuditRecord, error) {
	return r.repo.ListByServer(ctx, serverID, limit)
}

// Stop unsubscribes, then waits until every queued record is persisted
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	cancel, loop := r.cancel, r.loop
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-loop
	}
	r.queue.Close()
	r.pool.Wait()
	logger.Info("Audit recorder stopped")
}

package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
	"github.com/memefeed-labs/memefeed/internal/app/metrics"
	"github.com/memefeed-labs/memefeed/internal/app/storage"
	"github.com/memefeed-labs/memefeed/internal/logging"
)

// Mirror drains a queue of ledger records off the request path. Each record
// gets exactly one submission attempt: on success the transaction reference
// is written back onto the entity, on failure the record is logged and
// dropped and the entity stays pending. A failed or slow ledger can never
// fail, roll back or block a primary write.
type Mirror struct {
	queue     chan mirror.Record
	submitter Submitter
	store     storage.MirrorStore
	log       *logging.Logger
	timeout   time.Duration
	workers   int
	wg        sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// MirrorConfig configures the mirror worker pool.
type MirrorConfig struct {
	Submitter Submitter
	Store     storage.MirrorStore
	Logger    *logging.Logger
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// NewMirror creates a mirror worker pool. Call Start before enqueueing.
func NewMirror(cfg MirrorConfig) *Mirror {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("ledger-mirror")
	}
	return &Mirror{
		queue:     make(chan mirror.Record, queueSize),
		submitter: cfg.Submitter,
		store:     cfg.Store,
		log:       log,
		timeout:   timeout,
		workers:   workers,
	}
}

// Start launches the worker pool. Calling Start more than once is a no-op.
func (m *Mirror) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
}

// Stop closes the queue and waits for in-flight submissions to finish.
func (m *Mirror) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	m.wg.Wait()
}

// Enqueue hands a record to the workers. It never blocks: when the queue is
// full the record is dropped with a warning, leaving the entity pending.
// The lock is held across the send so Stop cannot close the queue between
// the closed check and the send.
func (m *Mirror) Enqueue(rec mirror.Record) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.log.WithField("record_type", rec.Type).Warn("mirror stopped; record dropped")
		return
	}
	select {
	case m.queue <- rec:
		m.mu.Unlock()
	default:
		m.mu.Unlock()
		m.log.WithFields(map[string]interface{}{
			"record_type": rec.Type,
			"entity_id":   rec.ID,
		}).Warn("mirror queue full; record dropped")
	}
}

func (m *Mirror) worker() {
	defer m.wg.Done()

	for rec := range m.queue {
		m.submit(rec)
	}
}

func (m *Mirror) submit(rec mirror.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	start := time.Now()
	txRef, err := m.submitter.Submit(ctx, rec.Payload)
	metrics.RecordMirrorSubmission(string(rec.Type), time.Since(start), err == nil)
	if err != nil {
		m.log.WithError(err).WithFields(map[string]interface{}{
			"record_type": rec.Type,
			"entity_id":   rec.ID,
		}).Warn("ledger submission failed; entity stays pending")
		return
	}

	// delete_like has no surviving row to carry a status.
	if rec.Entity == mirror.EntityNone {
		return
	}

	if err := m.store.SetMirrorCommitted(ctx, rec.Entity, rec.ID, txRef); err != nil {
		// The row can legitimately be gone, e.g. a like removed before
		// its mirror completed.
		if errors.Is(err, storage.ErrNotFound) {
			m.log.WithFields(map[string]interface{}{
				"record_type": rec.Type,
				"entity_id":   rec.ID,
			}).Debug("mirrored entity no longer exists")
			return
		}
		m.log.WithError(err).WithFields(map[string]interface{}{
			"record_type": rec.Type,
			"entity_id":   rec.ID,
		}).Warn("failed to record ledger commitment")
	}
}

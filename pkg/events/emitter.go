package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"

	"github.com/traffical/traffical-go/pkg/logger"
	"github.com/traffical/traffical-go/pkg/telemetry"
)

// Defaults for Options fields left at zero.
const (
	DefaultBatchSize     = 50
	DefaultFlushInterval = 5 * time.Second
	DefaultQueueSize     = 1000
	DefaultDedupTTL      = time.Hour
	DefaultDedupSize     = 10000
	// MaxOutboxAttempts is how many replays a persisted batch gets before
	// it is discarded.
	MaxOutboxAttempts = 10
)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("emitter is closed")

// Options configures an Emitter.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
	// DedupTTL suppresses identical decision events for the same unit
	// within the window. Negative disables deduplication.
	DedupTTL  time.Duration
	DedupSize int
	// Outbox, when set, receives batches that failed delivery.
	Outbox Outbox
}

func (o *Options) setDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.DedupTTL == 0 {
		o.DedupTTL = DefaultDedupTTL
	}
	if o.DedupSize <= 0 {
		o.DedupSize = DefaultDedupSize
	}
}

// Stats are cumulative emitter counters.
type Stats struct {
	Enqueued     uint64 `json:"enqueued"`
	Delivered    uint64 `json:"delivered"`
	Dropped      uint64 `json:"dropped"`
	Deduplicated uint64 `json:"deduplicated"`
	Failed       uint64 `json:"failed"`
	Persisted    uint64 `json:"persisted"`
	Replayed     uint64 `json:"replayed"`
}

type counters struct {
	enqueued, delivered, dropped, deduplicated, failed, persisted, replayed atomic.Uint64
}

// Emitter batches events on a single background worker and hands them to
// a Sink.
type Emitter struct {
	sink   Sink
	opts   Options
	queue  chan Event
	flush  chan chan error
	done   chan struct{}
	exited chan struct{}
	dedup  *expirable.LRU[string, struct{}]
	stats  counters

	// mu orders Enqueue against Close so nothing is queued after the
	// final drain, and keeps the dedup check and insert together.
	mu        sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewEmitter starts an emitter. ctx carries the logger used by the worker;
// the worker runs until Close.
func NewEmitter(ctx context.Context, sink Sink, opts Options) *Emitter {
	opts.setDefaults()
	e := &Emitter{
		sink:   sink,
		opts:   opts,
		queue:  make(chan Event, opts.QueueSize),
		flush:  make(chan chan error),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	if opts.DedupTTL > 0 {
		e.dedup = expirable.NewLRU[string, struct{}](opts.DedupSize, nil, opts.DedupTTL)
	}

	go e.run(logger.WithComponent(context.WithoutCancel(ctx), "emitter"))
	return e
}

// Enqueue queues ev without blocking. It reports false when the event was
// dropped (queue full or emitter closed) or suppressed as a duplicate.
func (e *Emitter) Enqueue(ctx context.Context, ev Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		e.stats.dropped.Add(1)
		return false
	}

	key := DedupKey(ev)
	if key != "" && e.dedup != nil && e.dedup.Contains(key) {
		e.stats.deduplicated.Add(1)
		return false
	}

	select {
	case e.queue <- ev:
		e.stats.enqueued.Add(1)
		if key != "" && e.dedup != nil {
			e.dedup.Add(key, struct{}{})
		}
		return true
	default:
		e.stats.dropped.Add(1)
		logger.G(ctx).WithField("type", ev.Type).Warn("event queue full, dropping event")
		return false
	}
}

// Flush delivers everything queued so far and waits for the result.
func (e *Emitter) Flush(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	reply := make(chan error, 1)
	select {
	case e.flush <- reply:
	case <-e.exited:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, delivers what is queued and stops the
// worker. It is safe to call more than once.
func (e *Emitter) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed.Store(true)
		e.mu.Unlock()
		close(e.done)
	})
	select {
	case <-e.exited:
		return e.closeErr
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "timed out draining event queue")
	}
}

// Stats returns a snapshot of the counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Enqueued:     e.stats.enqueued.Load(),
		Delivered:    e.stats.delivered.Load(),
		Dropped:      e.stats.dropped.Load(),
		Deduplicated: e.stats.deduplicated.Load(),
		Failed:       e.stats.failed.Load(),
		Persisted:    e.stats.persisted.Load(),
		Replayed:     e.stats.replayed.Load(),
	}
}

// QueueLen returns the number of events waiting in the queue.
func (e *Emitter) QueueLen() int {
	return len(e.queue)
}

func (e *Emitter) run(ctx context.Context) {
	defer close(e.exited)

	ticker := time.NewTicker(e.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, e.opts.BatchSize)
	for {
		select {
		case ev := <-e.queue:
			batch = append(batch, ev)
			if len(batch) >= e.opts.BatchSize {
				_ = e.deliver(ctx, batch)
				batch = make([]Event, 0, e.opts.BatchSize)
			}

		case <-ticker.C:
			_ = e.deliver(ctx, batch)
			if len(batch) > 0 {
				batch = make([]Event, 0, e.opts.BatchSize)
			}

		case reply := <-e.flush:
			reply <- e.deliver(ctx, e.drain(batch))
			batch = make([]Event, 0, e.opts.BatchSize)

		case <-e.done:
			e.closeErr = e.deliver(ctx, e.drain(batch))
			return
		}
	}
}

func (e *Emitter) drain(batch []Event) []Event {
	for {
		select {
		case ev := <-e.queue:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
}

// deliver replays the outbox and then sends pending in BatchSize chunks.
func (e *Emitter) deliver(ctx context.Context, pending []Event) error {
	if len(pending) == 0 {
		if e.opts.Outbox == nil {
			return nil
		}
		n, err := e.opts.Outbox.Count(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to count outbox batches")
		}
		if n == 0 {
			return nil
		}
	}

	return telemetry.WithSpan(ctx, telemetry.SpanEventsFlush, func(ctx context.Context) error {
		var result *multierror.Error

		replayed := true
		if e.opts.Outbox != nil {
			if err := e.replay(ctx); err != nil {
				replayed = false
				result = multierror.Append(result, err)
			}
		}

		for start := 0; start < len(pending); start += e.opts.BatchSize {
			end := min(start+e.opts.BatchSize, len(pending))
			chunk := pending[start:end]

			// keep the outbox ahead of newer events while it cannot drain
			if !replayed {
				result = multierror.Append(result, e.persist(ctx, chunk, nil))
				continue
			}
			if err := e.sink.Send(ctx, chunk); err != nil {
				result = multierror.Append(result, e.persist(ctx, chunk, err))
				continue
			}
			e.stats.delivered.Add(uint64(len(chunk)))
		}
		return result.ErrorOrNil()
	}, telemetry.EventCountKey.Int(len(pending)))
}

// persist saves a batch that could not be sent. Without an outbox, or when
// the failure is permanent, the batch is counted as failed.
func (e *Emitter) persist(ctx context.Context, chunk []Event, sendErr error) error {
	log := logger.G(ctx).WithField("events", len(chunk))

	if e.opts.Outbox == nil || IsPermanent(sendErr) {
		e.stats.failed.Add(uint64(len(chunk)))
		log.WithError(sendErr).Warn("dropping undeliverable events")
		return sendErr
	}
	if err := e.opts.Outbox.Save(ctx, chunk); err != nil {
		e.stats.failed.Add(uint64(len(chunk)))
		log.WithError(err).Error("failed to persist events to outbox")
		return multierror.Append(sendErr, err).ErrorOrNil()
	}
	e.stats.persisted.Add(uint64(len(chunk)))
	if sendErr != nil {
		log.WithError(sendErr).Info("event delivery failed, saved to outbox")
	}
	return sendErr
}

// replay sends persisted batches oldest first, stopping at the first
// transient failure so ordering is preserved.
func (e *Emitter) replay(ctx context.Context) error {
	batches, err := e.opts.Outbox.Pending(ctx, 100)
	if err != nil {
		return errors.Wrap(err, "failed to read outbox")
	}

	for _, b := range batches {
		if b.Attempts >= MaxOutboxAttempts {
			logger.G(ctx).WithField("batch", b.ID).Warn("discarding outbox batch after too many attempts")
			e.stats.failed.Add(uint64(len(b.Events)))
			if err := e.opts.Outbox.Delete(ctx, b.ID); err != nil {
				return err
			}
			continue
		}

		sendErr := e.sink.Send(ctx, b.Events)
		switch {
		case sendErr == nil:
			e.stats.replayed.Add(uint64(len(b.Events)))
			e.stats.delivered.Add(uint64(len(b.Events)))
		case IsPermanent(sendErr):
			e.stats.failed.Add(uint64(len(b.Events)))
			logger.G(ctx).WithError(sendErr).WithField("batch", b.ID).Warn("platform rejected outbox batch")
		default:
			if err := e.opts.Outbox.MarkAttempt(ctx, b.ID); err != nil {
				return multierror.Append(sendErr, err)
			}
			return sendErr
		}
		if err := e.opts.Outbox.Delete(ctx, b.ID); err != nil {
			return err
		}
	}
	return nil
}

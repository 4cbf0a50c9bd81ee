package exposure

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Storage provides bulk persistence for exposure records. Implementations
// should optimize for batch inserts; a batch either fully succeeds or fully
// fails.
type Storage interface {
	StoreBatch(ctx context.Context, records []Record) error
}

// WriterOptions configures the batching behavior of a WriterSink.
type WriterOptions struct {
	BufferSize     int           // Max records queued in memory; oldest dropped beyond this
	BatchSize      int           // Target records per storage write
	FlushInterval  time.Duration // Max time a partial batch waits before flushing
	StorageTimeout time.Duration // Per-batch storage timeout
	Logger         *slog.Logger
}

// WriterSink forwards records to a Storage in batches from a background
// goroutine. Emit never blocks: when the queue is full the oldest queued
// record is dropped, matching the bounded-buffer contract of the Sink
// interface.
type WriterSink struct {
	storage Storage
	queue   chan Record
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	once    sync.Once

	batchSize      int
	flushInterval  time.Duration
	storageTimeout time.Duration
	logger         *slog.Logger
}

// NewWriterSink creates a sink flushing to storage and starts its worker.
// Callers must Close it to flush the tail.
func NewWriterSink(storage Storage, opts WriterOptions) *WriterSink {
	if storage == nil {
		panic("exposure: storage cannot be nil")
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	w := &WriterSink{
		storage:        storage,
		queue:          make(chan Record, opts.BufferSize),
		done:           make(chan struct{}),
		batchSize:      opts.BatchSize,
		flushInterval:  opts.FlushInterval,
		storageTimeout: opts.StorageTimeout,
		logger:         opts.Logger,
	}

	w.wg.Add(1)
	go w.worker()
	return w
}

// Emit queues a record without blocking. When the queue is full the oldest
// queued record is discarded to make room.
func (w *WriterSink) Emit(rec Record) {
	select {
	case <-w.done:
		w.dropped.Add(1)
		return
	default:
	}

	select {
	case w.queue <- rec:
		return
	default:
	}

	// Queue full: evict the oldest queued record, then try once more. The
	// second send can still lose a race against other emitters, in which
	// case the new record is dropped instead.
	select {
	case <-w.queue:
		w.dropped.Add(1)
	default:
	}
	select {
	case w.queue <- rec:
	default:
		w.dropped.Add(1)
	}
}

// Dropped returns the number of records discarded due to a full queue.
func (w *WriterSink) Dropped() uint64 {
	return w.dropped.Load()
}

// Close stops the worker and flushes queued records, bounded by ctx.
func (w *WriterSink) Close(ctx context.Context) error {
	w.once.Do(func() { close(w.done) })

	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *WriterSink) worker() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, w.batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.storageTimeout)
		if err := w.storage.StoreBatch(ctx, batch); err != nil {
			w.logger.Error("exposure batch write failed",
				slog.Int("records", len(batch)),
				slog.String("error", err.Error()))
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-w.queue:
			batch = append(batch, rec)
			if len(batch) >= w.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-w.done:
			// Drain whatever is already queued, then flush the tail.
			for {
				select {
				case rec := <-w.queue:
					batch = append(batch, rec)
					if len(batch) >= w.batchSize {
						flush()
					}
					continue
				default:
				}
				break
			}
			flush()
			return
		}
	}
}

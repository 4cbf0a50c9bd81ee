package exposure

import (
	"log/slog"
	"sync"
)

// BufferedSink keeps records in a bounded in-memory ring for an external
// telemetry collaborator to drain. When the buffer is full the OLDEST unsent
// record is dropped to make room, so a slow or absent consumer costs bounded
// memory and never blocks evaluation.
type BufferedSink struct {
	mu      sync.Mutex
	records []Record
	start   int
	count   int
	dropped uint64
}

// NewBufferedSink creates a sink retaining at most capacity records.
// A minimum capacity of 1 is enforced.
func NewBufferedSink(capacity int) *BufferedSink {
	return &BufferedSink{
		records: make([]Record, max(capacity, 1)),
	}
}

// Emit appends a record, evicting the oldest one if the buffer is full.
func (b *BufferedSink) Emit(rec Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == len(b.records) {
		b.records[b.start] = rec
		b.start = (b.start + 1) % len(b.records)
		b.dropped++
		return
	}
	b.records[(b.start+b.count)%len(b.records)] = rec
	b.count++
}

// Drain returns all buffered records in emission order and empties the
// buffer. The returned slice is owned by the caller.
func (b *BufferedSink) Drain() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Record, b.count)
	for i := range b.count {
		out[i] = b.records[(b.start+i)%len(b.records)]
	}
	b.start = 0
	b.count = 0
	return out
}

// Len returns the number of buffered records.
func (b *BufferedSink) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns how many records were evicted because the buffer was full.
func (b *BufferedSink) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// LogSink writes each record to a structured logger at debug level. Intended
// for development setups without a telemetry pipeline.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink logging through the given logger,
// or slog.Default() when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit logs the record.
func (l *LogSink) Emit(rec Record) {
	l.logger.Debug("exposure",
		slog.String("feature_key", rec.FeatureKey),
		slog.String("identity", rec.Identity),
		slog.Bool("decision", rec.Decision),
		slog.String("reason", rec.Reason),
		slog.Int64("policy_version", rec.PolicyVersion))
}

package exposure_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rolloutkit/pkg/exposure"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]exposure.Record
}

func (m *memStorage) StoreBatch(ctx context.Context, records []exposure.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := make([]exposure.Record, len(records))
	copy(batch, records)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *memStorage) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestWriterSink(t *testing.T) {
	t.Parallel()

	t.Run("FlushesFullBatches", func(t *testing.T) {
		t.Parallel()
		storage := &memStorage{}
		sink := exposure.NewWriterSink(storage, exposure.WriterOptions{
			BatchSize:     10,
			FlushInterval: time.Hour, // only batch-size flushes
		})

		for i := range 30 {
			sink.Emit(record(fmt.Sprintf("f-%d", i)))
		}

		assert.Eventually(t, func() bool {
			return storage.total() == 30
		}, 2*time.Second, 10*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, sink.Close(ctx))
	})

	t.Run("CloseFlushesTail", func(t *testing.T) {
		t.Parallel()
		storage := &memStorage{}
		sink := exposure.NewWriterSink(storage, exposure.WriterOptions{
			BatchSize:     100,
			FlushInterval: time.Hour,
		})

		for i := range 7 {
			sink.Emit(record(fmt.Sprintf("f-%d", i)))
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, sink.Close(ctx))
		assert.Equal(t, 7, storage.total())
	})

	t.Run("IntervalFlushesPartialBatch", func(t *testing.T) {
		t.Parallel()
		storage := &memStorage{}
		sink := exposure.NewWriterSink(storage, exposure.WriterOptions{
			BatchSize:     100,
			FlushInterval: 20 * time.Millisecond,
		})

		sink.Emit(record("f-0"))

		assert.Eventually(t, func() bool {
			return storage.total() == 1
		}, 2*time.Second, 10*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, sink.Close(ctx))
	})

	t.Run("EmitAfterCloseIsDropped", func(t *testing.T) {
		t.Parallel()
		storage := &memStorage{}
		sink := exposure.NewWriterSink(storage, exposure.WriterOptions{})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, sink.Close(ctx))

		sink.Emit(record("late"))
		assert.Equal(t, uint64(1), sink.Dropped())
		assert.Zero(t, storage.total())
	})

	t.Run("NilStoragePanics", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() {
			exposure.NewWriterSink(nil, exposure.WriterOptions{})
		})
	})
}

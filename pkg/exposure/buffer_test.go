package exposure_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rolloutkit/pkg/exposure"
)

func record(key string) exposure.Record {
	return exposure.Record{
		ID:         uuid.New(),
		Identity:   "device-1",
		FeatureKey: key,
		Decision:   true,
		Reason:     "rollout",
	}
}

func TestBufferedSink(t *testing.T) {
	t.Parallel()

	t.Run("DrainReturnsEmissionOrder", func(t *testing.T) {
		t.Parallel()
		sink := exposure.NewBufferedSink(10)
		for i := range 5 {
			sink.Emit(record(fmt.Sprintf("f-%d", i)))
		}

		drained := sink.Drain()
		require.Len(t, drained, 5)
		for i, rec := range drained {
			assert.Equal(t, fmt.Sprintf("f-%d", i), rec.FeatureKey)
		}
		assert.Zero(t, sink.Len())
	})

	t.Run("DropsOldestWhenFull", func(t *testing.T) {
		t.Parallel()
		sink := exposure.NewBufferedSink(3)
		for i := range 5 {
			sink.Emit(record(fmt.Sprintf("f-%d", i)))
		}

		drained := sink.Drain()
		require.Len(t, drained, 3)
		// f-0 and f-1 were evicted; the newest three remain in order.
		assert.Equal(t, "f-2", drained[0].FeatureKey)
		assert.Equal(t, "f-3", drained[1].FeatureKey)
		assert.Equal(t, "f-4", drained[2].FeatureKey)
		assert.Equal(t, uint64(2), sink.Dropped())
	})

	t.Run("MinimumCapacityEnforced", func(t *testing.T) {
		t.Parallel()
		sink := exposure.NewBufferedSink(0)
		sink.Emit(record("f-0"))
		assert.Equal(t, 1, sink.Len())
	})

	t.Run("ConcurrentEmitNeverBlocks", func(t *testing.T) {
		t.Parallel()
		sink := exposure.NewBufferedSink(8)

		var wg sync.WaitGroup
		for i := range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sink.Emit(record(fmt.Sprintf("f-%d", i)))
			}()
		}
		wg.Wait()

		assert.Equal(t, 8, sink.Len())
		assert.Equal(t, uint64(92), sink.Dropped())
	})
}

// Package exposure defines the append-only audit events emitted for every
// flag evaluation and the sinks that carry them to a telemetry collaborator.
//
// Each evaluation produces exactly one Record tagging the decision with the
// resolution tier that produced it (kill switch, override, rollout bucket,
// rule default, or policy miss) and the policy version it was made under,
// which is what makes rollout analysis possible downstream.
//
// All sinks share one contract: Emit never blocks the evaluator. Slow
// consumers cost dropped records, not evaluation latency.
//
//   - BufferedSink: bounded ring the collaborator drains by polling; drops
//     the oldest unsent record when full.
//   - WriterSink: background batcher flushing to a Storage implementation.
//   - PGStorage: pgx-backed Storage writing batched inserts to Postgres.
//   - LogSink / Discard: development and no-op sinks.
//
// # Usage
//
//	store, err := exposure.ConnectPGStorage(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	sink := exposure.NewWriterSink(store, exposure.WriterOptions{BatchSize: 200})
//	defer sink.Close(ctx)
//
//	eval := evaluator.New(policyStore, evaluator.WithSink(sink))
package exposure

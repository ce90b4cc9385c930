// Package executor drains a study's pending jobs through a bounded
// worker pool, one recovery-managed adapter call per cell.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────┐
//	│                    Executor                      │
//	│                                                  │
//	│  Launch(study)                                   │
//	│     │                                            │
//	│     ▼                                            │
//	│  dispatch loop ── pending jobs in emission order │
//	│     │  (blocks while paused, aborts on cancel)   │
//	│     ▼                                            │
//	│  errgroup pool (≤ workers)                       │
//	│     │                                            │
//	│     ▼  per job:                                  │
//	│  claim (CAS pending→running)                     │
//	│     → resolve adapter, session, deadline         │
//	│     → recovery.Execute (retries, fallback)       │
//	│     → quality gates, cost accrual                │
//	│     → FinishJob + AddStudyProgress + event       │
//	│     → evaluate completion criteria               │
//	└──────────────────────────────────────────────────┘
//
// Per cell the executor guarantees at-most-once success: claims are
// compare-and-swap on job status, and a succeeded job is immutable in
// the store. Across cells there is no ordering guarantee beyond the
// pool bound. Study counters only ever grow.
//
// Pause stops claiming but lets in-flight jobs finish; the dispatch
// loop blocks until resumed or cancelled. Cancellation propagates a
// context down to adapter calls and recovery sleeps.
package executor

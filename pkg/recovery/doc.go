// Package recovery wraps adapter invocations in a failover chain with
// per-surface circuit breaking and health tracking.
//
// Architecture:
//
//	┌────────────────────────────────────────────────┐
//	│                    Manager                     │
//	│                                                │
//	│  Execute(surface, request)                     │
//	│       │                                        │
//	│       ▼                                        │
//	│  ┌─────────┐  open   ┌──────────────┐          │
//	│  │ breaker ├────────▶│ CIRCUIT_OPEN │          │
//	│  └────┬────┘         └──────────────┘          │
//	│       │ closed / half-open                     │
//	│       ▼                                        │
//	│  primary adapter ──retry w/ backoff──┐         │
//	│       │ session broken / exhausted   │         │
//	│       ▼                              │         │
//	│  CDP fallback (once)                 │success  │
//	│       │ failed                       │         │
//	│       ▼                              │         │
//	│  alternates (one attempt each) ──────┤         │
//	│       │ all failed                   ▼         │
//	│       ▼                          Result{ok}    │
//	│  record failure → may open breaker             │
//	└────────────────────────────────────────────────┘
//
// Failure classification decides the retry policy per attempt:
// upstream rate limits back off exponentially with jitter, transient
// transport failures retry after the base delay, and session-breaking
// conditions (anti-bot walls, expired sessions) abandon the adapter
// immediately. Every sleep observes the caller's context.
//
// One breaker guards each surface. The whole chain counts as a single
// breaker execution: only a fully failed chain records a failure, and
// consecutive failures past the threshold open the circuit. A single
// success in half-open closes it again.
package recovery

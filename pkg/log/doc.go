/*
Package log provides structured logging for Bentham using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level for production debugging.

# Architecture

Bentham's logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("orchestrator")            │          │
	│  │  - WithTenantID("tenant-abc123")            │          │
	│  │  - WithStudyID("study-xyz")                 │          │
	│  │  - WithJobID("study-xyz.q0.sonar.us")       │          │
	│  │  - WithSurfaceID("sonar")                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "executor",                 │          │
	│  │    "study_id": "study-xyz",                 │          │
	│  │    "time": "2026-08-24T10:30:00Z",         │          │
	│  │    "message": "job succeeded"               │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF job succeeded component=executor │        │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

Initialize once in main:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Create component loggers:

	logger := log.WithComponent("recovery")
	logger.Warn().Str("surface_id", id).Msg("circuit opened")

Note that tenant identifiers are safe to log; raw API key material and
captured response bodies never are.

# Integration Points

Every Bentham package logs through this wrapper so output stays uniform:
the gateway logs request outcomes, the orchestrator logs lifecycle
transitions, the executor logs per-job outcomes, and the recovery manager
logs circuit state changes.
*/
package log

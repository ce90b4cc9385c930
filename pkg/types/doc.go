/*
Package types defines the core data structures used throughout Bentham.

This package contains all fundamental types that represent Bentham's domain
model, including tenants, API keys, study manifests, studies, jobs, results,
and surface health. These types are used by all other packages for state
management, API payloads, and orchestration logic.

# Architecture

The types package is the foundation of Bentham's data model. It defines:

  - Tenancy primitives (tenants, API keys with hashed secrets)
  - Study manifests (queries, surfaces, locations, completion criteria)
  - Study lifecycle state and its transition DAG
  - The job matrix (one job per query x surface x location cell)
  - Captured results (response content, citations, token usage, sessions)
  - Recovery primitives (circuit state, surface health)
  - The stable error code taxonomy

All types are designed to be:
  - Serializable (JSON, both over HTTP and into the store)
  - Immutable where possible (results never change once written)
  - Self-documenting (clear field names and comments)
  - Validated (typed enums, validation tags consumed by pkg/validator)

# Study Lifecycle

Studies follow a state machine:

	validating → queued → executing → completed
	                          ⇅
	                        paused

	Any non-terminal state may also move to failed or cancelled.

Valid transitions are encoded in ValidStudyTransitions and checked by
CanTransition; completed, failed, and cancelled are terminal. The internal
"executing" state is reported as "running" over the API (see External).

# Cell Identity

A Job is one cell of the study matrix. Its identity tuple
(studyID, queryIndex, surfaceID, locationID) is the idempotency key for
execution: JobID derives a deterministic identifier from it, so emitting
the same matrix twice produces the same jobs rather than duplicates. A
cell succeeds at most once and a succeeded cell is never re-run.

# Error Codes

ErrorCode values are stable strings shared by the gateway envelope, the
recovery manager, and stored job outcomes. Retryable and BreaksSession
encode the retry policy each classification implies.

# Integration Points

This package integrates with:

  - pkg/storage: persists studies, jobs, and API keys
  - pkg/validator: enforces manifest well-formedness rules
  - pkg/orchestrator: drives the study lifecycle DAG
  - pkg/executor: claims and executes jobs
  - pkg/recovery: classifies failures and tracks surface health
  - pkg/gateway: serializes these types in API responses

# Thread Safety

Types in this package carry no locks. The storage layer synchronizes all
persisted state; in-memory holders must implement their own locking.
*/
package types

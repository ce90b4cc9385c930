/*
Package storage provides state persistence for Bentham's studies, jobs,
and API keys.

The storage package defines the Store interface and ships two
implementations: BoltStore, backed by BoltDB for production single-node
deployments, and MemoryStore, backed by in-process maps for tests and dev
mode. All data is serialized as JSON and stored in separate buckets for
efficient querying and isolation.

# Architecture

	┌──────────────────── STATE STORE ─────────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Store interface                  │          │
	│  │  - CRUD for studies, jobs, API keys         │          │
	│  │  - TransitionStudy: status CAS against DAG  │          │
	│  │  - ClaimJob: pending → running CAS          │          │
	│  │  - AddStudyProgress: additive counters      │          │
	│  └───────────┬──────────────────┬─────────────┘          │
	│              │                  │                          │
	│  ┌───────────▼──────────┐  ┌───▼──────────────┐          │
	│  │      BoltStore       │  │   MemoryStore    │          │
	│  │  <dataDir>/bentham.db│  │  RWMutex + maps  │          │
	│  │  Buckets:            │  │  copy-on-read    │          │
	│  │   studies (ID)       │  │                  │          │
	│  │   jobs    (cell ID)  │  │                  │          │
	│  │   apikeys (key ID)   │  │                  │          │
	│  └──────────────────────┘  └──────────────────┘          │
	└────────────────────────────────────────────────────────┘

# Concurrency Discipline

Executor workers race to claim jobs and to fold outcomes into study
counters, so the interface exposes atomic operations instead of letting
callers read-modify-write:

  - TransitionStudy/TerminateStudy compare-and-swap the study status and
    enforce the lifecycle DAG. Losing a race returns ErrConflict.
  - ClaimJob compare-and-swaps a job's status; a lost claim returns
    (false, nil) so workers can skip silently.
  - AddStudyProgress adds to the completed/failed counters and accrues
    cost in one commit. Counters only ever grow.
  - FinishJob refuses to overwrite a succeeded job, which keeps captured
    results immutable and cell success at-most-once.

BoltStore gets atomicity from db.Update transactions; MemoryStore from a
single mutex. Reads return independent copies in both implementations.

# Tenant Scoping

GetTenantStudy is the defensive read used by everything serving the API:
a study owned by another tenant comes back as ErrNotFound, identical to a
missing study, so tenants cannot probe for foreign study IDs.

# Matrix Ordering

Jobs carry their matrix emission sequence (query, then surface, then
location, in manifest order). ListJobsByStudy and ListPendingJobs return
jobs sorted by that sequence; this is the initial dispatch layout, not an
execution-order guarantee.
*/
package storage

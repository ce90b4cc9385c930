// Package orchestrator owns the study lifecycle: admission, matrix
// emission, pause/resume/cancel, tenant-scoped status and results
// assembly, and the background monitor.
//
// Architecture:
//
//	┌───────────────────────────────────────────────┐
//	│                 Orchestrator                  │
//	│                                               │
//	│  CreateStudy(tenant, manifest)                │
//	│    validate → estimate costs → persist        │
//	│    → emit Q·S·L job matrix → queued           │
//	│    → executing → executor.Launch              │
//	│                                               │
//	│  GetStudyStatus / GetStudyResults / Costs     │
//	│    tenant-scoped reads; unowned == unknown    │
//	│                                               │
//	│  Pause / Resume / Cancel                      │
//	│    CAS status per lifecycle DAG, then steer   │
//	│    the executor                               │
//	│                                               │
//	│  Monitor loop                                 │
//	│    deadline sweep + startup recovery          │
//	└───────────────────────────────────────────────┘
//
// Every public operation takes the tenant id first and treats studies
// owned by other tenants exactly like missing ones. The caller (the
// gateway) derives the tenant id from the authenticated API key, so no
// request can name a tenant it does not own.
package orchestrator

// Package gateway is the tenant-facing HTTP surface: bearer
// authentication against hashed API keys, per-key rate limiting,
// tenant scoping, and the /v1 study routes.
//
// Architecture:
//
//	┌──────────────────────────────────────────────┐
//	│                   Gateway                    │
//	│                                              │
//	│  chi router                                  │
//	│    RealIP → security headers → logging       │
//	│    → recoverer → CORS                        │
//	│                                              │
//	│  /health, /v1/health, /metrics    (public)   │
//	│                                              │
//	│  /v1/studies...                 (protected)  │
//	│    body cap → bearer auth → rate limit       │
//	│    → tenant bound into request context       │
//	│    → orchestrator (tenantId first argument)  │
//	└──────────────────────────────────────────────┘
//
// Every response carries the {success, data, error:{code, message}}
// envelope and the security headers. Error messages are safe by
// construction: they never echo request input, never distinguish
// unknown from unowned studies, and never expose internals.
package gateway

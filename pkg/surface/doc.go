/*
Package surface defines the adapter contract for AI surfaces and ships
the built-in adapter families.

A surface is anything that can answer a prompt: a hosted chat API, a
browser-driven web UI, a local simulator. The core only ever sees the
Adapter interface; everything surface-specific lives behind it.

# Architecture

	┌─────────────────── SURFACE LAYER ────────────────────┐
	│                                                        │
	│  config definitions                                    │
	│        │                                               │
	│  ┌─────▼──────────────────────────────┐               │
	│  │              Registry               │               │
	│  │  - id → factory, fixed at startup   │               │
	│  │  - lazy instantiation, cached       │               │
	│  │  - per-surface ceilings + pricing   │               │
	│  └─────┬───────────────────┬──────────┘               │
	│        │                   │                           │
	│  ┌─────▼──────┐     ┌──────▼───────┐                  │
	│  │ restchat   │     │    echo      │                  │
	│  │ OpenAI-    │     │ local,       │                  │
	│  │ compatible │     │ deterministic│                  │
	│  │ JSON API   │     │ dev/demo     │                  │
	│  └────────────┘     └──────────────┘                  │
	│                                                        │
	│  ┌────────────────────────────────────┐               │
	│  │   Prober: HealthCheck loop per     │               │
	│  │   surface → recovery health records │               │
	│  └────────────────────────────────────┘               │
	└────────────────────────────────────────────────────┘

# Adapter Contract

Query executes one prompt and returns the captured response. Failures
are *Error values carrying a taxonomy code; the recovery manager reads
the code to pick a retry policy. Adapters must honor context
cancellation: an aborted call returns CANCELLED, an expired deadline
TIMEOUT.

HealthCheck probes reachability without spending tokens. Close releases
session resources; the registry closes every cached adapter at
shutdown.

# Classification

The restchat adapter maps upstream statuses onto the taxonomy: 429 is
RATE_LIMIT, 401 SESSION_EXPIRED, 403 ANTI_BOT, 5xx NETWORK_ERROR,
timeouts TIMEOUT. Upstream response bodies never appear in error
messages.

# Browser Surfaces

Browser-driven families (CDP automation) stay outside the core; they
plug in through the same Adapter interface. Only the REST and echo
families ship here.

# Integration Points

  - pkg/executor: resolves adapters per cell and issues queries
  - pkg/recovery: consumes *Error codes and prober outcomes
  - pkg/config: supplies the definitions the registry is built from
  - pkg/costs: pricing table assembled from definitions
*/
package surface

/*
Package ratelimit enforces per-key request budgets for the gateway.

Every API key carries its own allowance (requests per window). The
gateway consumes one unit per authenticated request; denied requests
surface as 429 RATE_LIMITED with a Retry-After hint taken from the
Decision.

Two implementations of the Limiter interface:

  - LocalLimiter: token bucket per key (golang.org/x/time/rate), capacity
    equal to the key's limit, refilled continuously over the window.
    State lives in process memory.
  - RedisLimiter: fixed window counter per key (INCR + PEXPIRE). All
    gateway replicas share the budget; the counter expires with the
    window.

Keys with a zero limit or window are not rate limited.

The local bucket map is bounded: past 10000 entries it is reset rather
than tracked per-entry, which briefly refills budgets for active keys.
Deployments with that many live keys should run the Redis limiter.
*/
package ratelimit

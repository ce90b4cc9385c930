/*
Package auth manages API key material and resolution for the gateway.

Secrets have the form btm_<43 chars of URL-safe base64> carrying 32 bytes
of randomness. Only the SHA-256 hash of a secret is ever persisted; the
raw value is shown once at minting time and cannot be recovered.

# Resolution

	┌────────────┐   hash, always   ┌──────────────┐   by hash   ┌───────┐
	│  presented │ ───────────────▶ │   Keychain   │ ──────────▶ │ store │
	│   secret   │                  │ (expiry gate) │             └───────┘
	└────────────┘                  └──────────────┘

Resolve hashes the presented secret before any lookup happens, whether or
not a matching record exists. Lookup is by hash only, so the work done for
a valid key and for garbage input is the same shape; callers cannot probe
key existence through timing.

Neither unknown nor expired keys yield a record. The two cases carry
distinct sentinel errors (ErrUnknownKey, ErrKeyExpired) so the gateway
can answer with INVALID_API_KEY or API_KEY_EXPIRED, but both end the
request unauthenticated.

# Integration Points

  - pkg/gateway: bearer authentication middleware
  - pkg/storage: hash-indexed key records
  - cmd/bentham: offline key administration (mint, list, revoke)
*/
package auth

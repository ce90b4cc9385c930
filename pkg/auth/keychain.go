package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benthamhq/bentham/pkg/storage"
	"github.com/benthamhq/bentham/pkg/types"
)

var (
	// ErrUnknownKey means no record matches the presented secret
	ErrUnknownKey = errors.New("unknown api key")

	// ErrKeyExpired means a record matches but is past its expiry
	ErrKeyExpired = errors.New("api key expired")
)

// Keychain resolves presented API secrets to their stored records
type Keychain struct {
	store storage.Store
	now   func() time.Time
}

// NewKeychain creates a keychain backed by the given store
func NewKeychain(store storage.Store) *Keychain {
	return &Keychain{
		store: store,
		now:   time.Now,
	}
}

// Add stores a key record. The record carries only the hash of its
// secret, never the secret itself. Duplicate hashes are rejected by the
// store.
func (k *Keychain) Add(key *types.APIKey) error {
	if key.ID == "" || key.TenantID == "" {
		return fmt.Errorf("api key requires id and tenant")
	}
	if !ValidHash(key.KeyHash) {
		return fmt.Errorf("api key hash must be 64 lowercase hex characters")
	}

	if err := k.store.CreateAPIKey(key); err != nil {
		return fmt.Errorf("failed to store api key: %w", err)
	}

	return nil
}

// Resolve maps a presented secret to its key record. Unknown keys
// return ErrUnknownKey and expired keys ErrKeyExpired; neither yields a
// record. The secret is hashed before any lookup, unconditionally, so
// resolution cost does not depend on whether the key exists.
func (k *Keychain) Resolve(secret string) (*types.APIKey, error) {
	hash := HashSecret(secret)

	key, err := k.store.GetAPIKeyByHash(hash)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownKey
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve api key: %w", err)
	}

	if key.Expired(k.now()) {
		return nil, ErrKeyExpired
	}

	return key, nil
}

// Mint assembles a key record around a fresh secret. The raw secret is
// returned exactly once; only its hash ends up in the record.
func Mint(tenantID, name string, rateLimit int, windowMs int64, expiresAt *time.Time) (*types.APIKey, string, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return nil, "", err
	}

	key := &types.APIKey{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		KeyHash:   HashSecret(secret),
		Name:      name,
		RateLimit: rateLimit,
		WindowMs:  windowMs,
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	return key, secret, nil
}

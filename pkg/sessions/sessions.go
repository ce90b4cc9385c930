package sessions

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"

	"github.com/benthamhq/bentham/pkg/types"
)

// userAgents is the stable pool a session's user agent is drawn from.
// A session keeps one user agent for its whole lifetime.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
}

// Registry hands out session contexts according to a study's isolation
// mode. Cached sessions expire after the TTL and are refreshed on use.
//
// Sessions never cross tenants. With that ruled out, the shared and
// per-tenant modes resolve to the same scope: one session per
// (tenant, surface), reused across the tenant's studies. Per-query
// mints a fresh session for every cell execution.
type Registry struct {
	cache *cache.Cache
	mu    sync.Mutex
}

// NewRegistry creates a session registry with the given idle TTL
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		cache: cache.New(ttl, 2*ttl),
	}
}

// Acquire returns the session context a cell should execute under
func (r *Registry) Acquire(isolation types.SessionIsolation, tenantID, surfaceID string) types.SessionContext {
	if isolation == types.SessionPerQuery {
		return newContext()
	}

	key := scopeKey(tenantID, surfaceID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache.Get(key); ok {
		sc := v.(types.SessionContext)
		r.cache.SetDefault(key, sc) // Refresh the TTL while in use
		return sc
	}

	sc := newContext()
	r.cache.SetDefault(key, sc)
	return sc
}

// Invalidate drops the cached session for a scope. Called when a call
// fails with a session-breaking classification (ANTI_BOT,
// SESSION_EXPIRED) so the next cell starts clean.
func (r *Registry) Invalidate(tenantID, surfaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Delete(scopeKey(tenantID, surfaceID))
}

func scopeKey(tenantID, surfaceID string) string {
	return tenantID + "/" + surfaceID
}

func newContext() types.SessionContext {
	id := uuid.New().String()

	h := fnv.New32a()
	h.Write([]byte(id))

	return types.SessionContext{
		SessionID: id,
		UserAgent: userAgents[h.Sum32()%uint32(len(userAgents))],
	}
}

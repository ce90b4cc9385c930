// Package framework hosts the in-process test harness: the full
// service stack behind an httptest listener, scriptable chat
// upstreams, and condition waiters for end-to-end tests.
package framework

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/benthamhq/bentham/pkg/auth"
	"github.com/benthamhq/bentham/pkg/client"
	"github.com/benthamhq/bentham/pkg/events"
	"github.com/benthamhq/bentham/pkg/executor"
	"github.com/benthamhq/bentham/pkg/gateway"
	"github.com/benthamhq/bentham/pkg/orchestrator"
	"github.com/benthamhq/bentham/pkg/ratelimit"
	"github.com/benthamhq/bentham/pkg/recovery"
	"github.com/benthamhq/bentham/pkg/sessions"
	"github.com/benthamhq/bentham/pkg/storage"
	"github.com/benthamhq/bentham/pkg/surface"
	"github.com/benthamhq/bentham/pkg/validator"
)

// Options configures a harness. Zero values get test-friendly
// defaults: fast retry pacing and a single echo surface.
type Options struct {
	Surfaces []surface.Definition
	Recovery recovery.Config
	Workers  int
}

// Harness is the full service stack wired in process and served over
// a loopback listener
type Harness struct {
	Server   *httptest.Server
	Store    storage.Store
	Executor *executor.Executor
	Recovery *recovery.Manager
	Keychain *auth.Keychain
	Broker   *events.Broker
}

// New builds and starts a harness. Everything is torn down through
// t.Cleanup.
func New(t *testing.T, opts *Options) *Harness {
	t.Helper()

	if opts == nil {
		opts = &Options{}
	}
	if len(opts.Surfaces) == 0 {
		opts.Surfaces = []surface.Definition{{ID: "echo", Kind: surface.KindEcho}}
	}
	if opts.Recovery == (recovery.Config{}) {
		opts.Recovery = recovery.Config{
			MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond,
			Threshold: 100, ResetTimeout: time.Minute,
		}
	}
	if opts.Workers == 0 {
		opts.Workers = 2
	}

	store := storage.NewMemoryStore()
	registry, err := surface.NewRegistry(opts.Surfaces)
	require.NoError(t, err)

	broker := events.NewBroker()
	broker.Start()

	rec := recovery.NewManager(opts.Recovery, broker)
	exec := executor.New(store, registry, rec, sessions.NewRegistry(time.Minute), broker, executor.Config{
		Workers: opts.Workers,
	})
	orch := orchestrator.New(store, validator.New(), exec, broker, registry.Pricing())
	keychain := auth.NewKeychain(store)

	gw := gateway.NewServer(gateway.Config{MaxBodyBytes: 1 << 20}, orch, keychain, ratelimit.NewLocalLimiter(), store, nil)
	ts := httptest.NewServer(gw.Handler())

	h := &Harness{
		Server:   ts,
		Store:    store,
		Executor: exec,
		Recovery: rec,
		Keychain: keychain,
		Broker:   broker,
	}
	t.Cleanup(func() {
		ts.Close()
		exec.Stop()
		broker.Stop()
		registry.CloseAll()
		store.Close()
	})
	return h
}

// MintKey stores a fresh key for the tenant and returns its secret
func (h *Harness) MintKey(t *testing.T, tenantID string) string {
	t.Helper()

	key, secret, err := auth.Mint(tenantID, "e2e key", 0, 0, nil)
	require.NoError(t, err)
	require.NoError(t, h.Keychain.Add(key))
	return secret
}

// Client returns an API client authenticated with the given secret
func (h *Harness) Client(secret string) *client.Client {
	return client.New(h.Server.URL, secret)
}

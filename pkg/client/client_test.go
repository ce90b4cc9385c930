package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benthamhq/bentham/pkg/auth"
	"github.com/benthamhq/bentham/pkg/costs"
	"github.com/benthamhq/bentham/pkg/executor"
	"github.com/benthamhq/bentham/pkg/gateway"
	"github.com/benthamhq/bentham/pkg/orchestrator"
	"github.com/benthamhq/bentham/pkg/ratelimit"
	"github.com/benthamhq/bentham/pkg/recovery"
	"github.com/benthamhq/bentham/pkg/sessions"
	"github.com/benthamhq/bentham/pkg/storage"
	"github.com/benthamhq/bentham/pkg/surface"
	"github.com/benthamhq/bentham/pkg/types"
	"github.com/benthamhq/bentham/pkg/validator"
)

// newServer spins up the full stack behind an httptest listener and
// returns a client holding a freshly minted key
func newServer(t *testing.T) (*Client, *executor.Executor) {
	t.Helper()

	store := storage.NewMemoryStore()
	registry, err := surface.NewRegistry([]surface.Definition{
		{ID: "echo-a", Kind: surface.KindEcho, Pricing: costs.Pricing{PerQuery: 0.01}},
	})
	require.NoError(t, err)

	rec := recovery.NewManager(recovery.Config{
		MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond,
		Threshold: 100, ResetTimeout: time.Minute,
	}, nil)
	exec := executor.New(store, registry, rec, sessions.NewRegistry(time.Minute), nil, executor.Config{Workers: 2})
	orch := orchestrator.New(store, validator.New(), exec, nil, registry.Pricing())
	keychain := auth.NewKeychain(store)

	key, secret, err := auth.Mint("T1", "cli", 0, 0, nil)
	require.NoError(t, err)
	require.NoError(t, keychain.Add(key))

	gw := gateway.NewServer(gateway.Config{MaxBodyBytes: 1 << 20}, orch, keychain, ratelimit.NewLocalLimiter(), store, nil)
	ts := httptest.NewServer(gw.Handler())

	t.Cleanup(func() {
		ts.Close()
		exec.Stop()
		store.Close()
	})
	return New(ts.URL, secret), exec
}

func testManifest() *types.Manifest {
	return &types.Manifest{
		Name:      "client roundtrip",
		Queries:   []types.Query{{Text: "best running shoes"}},
		Surfaces:  []types.SurfaceRef{{SurfaceID: "echo-a", Required: true}},
		Locations: []types.Location{{ID: "us-east"}},
		Completion: types.CompletionCriteria{
			CoverageThreshold: 0.95,
			MaxRetriesPerCell: 1,
		},
		Deadline:         time.Now().Add(time.Hour),
		SessionIsolation: types.SessionPerQuery,
	}
}

func TestClientStudyRoundtrip(t *testing.T) {
	c, exec := newServer(t)
	ctx := context.Background()

	receipt, err := c.CreateStudy(ctx, testManifest())
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.StudyID)
	assert.Equal(t, "validating", receipt.Status)

	exec.Wait(receipt.StudyID)

	view, err := c.GetStudy(ctx, receipt.StudyID)
	require.NoError(t, err)
	assert.Equal(t, "completed", view.Status)
	assert.Equal(t, 1, view.Progress.Completed)

	results, err := c.GetResults(ctx, receipt.StudyID)
	require.NoError(t, err)
	require.Len(t, results.Cells, 1)
	assert.Equal(t, "best running shoes", results.Cells[0].QueryText)
	assert.Equal(t, 1, results.Summary.SuccessfulQueries)

	report, err := c.GetCosts(ctx, receipt.StudyID)
	require.NoError(t, err)
	assert.Equal(t, "USD", report.Currency)
	assert.InDelta(t, 0.01, report.Total, 0.0001)

	listing, err := c.ListStudies(ctx)
	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, receipt.StudyID, listing[0].StudyID)
}

func TestClientErrorCarriesAPICode(t *testing.T) {
	c, _ := newServer(t)

	_, err := c.GetStudy(context.Background(), "study_missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, types.ErrCodeStudyNotFound, apiErr.Code)
}

func TestClientValidationError(t *testing.T) {
	c, _ := newServer(t)

	bad := testManifest()
	bad.Queries = nil

	_, err := c.CreateStudy(context.Background(), bad)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, types.ErrCodeValidation, apiErr.Code)
}

func TestClientHealth(t *testing.T) {
	c, _ := newServer(t)

	report, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", report["status"])
}

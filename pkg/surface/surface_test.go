package surface

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benthamhq/bentham/pkg/costs"
	"github.com/benthamhq/bentham/pkg/types"
)

func echoDefs() []Definition {
	return []Definition{
		{ID: "echo-a", Kind: KindEcho, TimeoutMs: 5000, Pricing: costs.Pricing{PerQuery: 0.01}},
		{ID: "echo-b", Kind: KindEcho},
	}
}

func TestRegistryBuildsFromDefinitions(t *testing.T) {
	r, err := NewRegistry(echoDefs())
	require.NoError(t, err)

	assert.Equal(t, []string{"echo-a", "echo-b"}, r.IDs())
	assert.True(t, r.Has("echo-a"))
	assert.False(t, r.Has("chatgpt-web"))
	assert.Equal(t, 5*time.Second, r.Ceiling("echo-a"))
	assert.Equal(t, time.Duration(0), r.Ceiling("echo-b"))
	assert.Equal(t, costs.Table{
		"echo-a": {PerQuery: 0.01},
		"echo-b": {},
	}, r.Pricing())
}

func TestRegistryCachesAdapters(t *testing.T) {
	r, err := NewRegistry(echoDefs())
	require.NoError(t, err)

	first, err := r.Adapter("echo-a")
	require.NoError(t, err)
	second, err := r.Adapter("echo-a")
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestRegistryUnknownSurface(t *testing.T) {
	r, err := NewRegistry(echoDefs())
	require.NoError(t, err)

	_, err = r.Adapter("gemini-web")
	var surfErr *Error
	require.ErrorAs(t, err, &surfErr)
	assert.Equal(t, types.ErrCodeSurfaceUnavailable, surfErr.Code)
}

func TestRegistryRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
	}{
		{"duplicate id", []Definition{{ID: "x", Kind: KindEcho}, {ID: "x", Kind: KindEcho}}},
		{"missing id", []Definition{{Kind: KindEcho}}},
		{"unknown kind", []Definition{{ID: "x", Kind: "browser"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.defs)
			assert.Error(t, err)
		})
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r, err := NewRegistry(echoDefs())
	require.NoError(t, err)

	_, err = r.Adapter("echo-a")
	require.NoError(t, err)

	require.NoError(t, r.CloseAll())

	// Adapters are rebuilt after a close
	again, err := r.Adapter("echo-a")
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestEchoAdapterDeterministicAnswer(t *testing.T) {
	a := newEchoAdapter("echo-a")

	req := &Request{Query: "best project management tools"}
	first, err := a.Query(context.Background(), req)
	require.NoError(t, err)
	second, err := a.Query(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Text, second.Text)
	assert.Contains(t, first.Text, "best project management tools")
	require.Len(t, first.Citations, 1)
	assert.Equal(t, first.Citations[0].URL, second.Citations[0].URL)
	assert.Greater(t, first.TokensIn, 0)
	assert.Greater(t, first.TokensOut, 0)
}

func TestEchoAdapterHonorsCancellation(t *testing.T) {
	a := newEchoAdapter("echo-a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Query(ctx, &Request{Query: "anything"})
	var surfErr *Error
	require.ErrorAs(t, err, &surfErr)
	assert.Equal(t, types.ErrCodeCancelled, surfErr.Code)
}

func TestEchoAdapterDelayOption(t *testing.T) {
	a := newEchoAdapter("echo-a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := a.Query(ctx, &Request{
		Query:   "anything",
		Options: map[string]interface{}{"delayMs": float64(500)},
	})
	var surfErr *Error
	require.ErrorAs(t, err, &surfErr)
	assert.Equal(t, types.ErrCodeTimeout, surfErr.Code)
}

type recordingRecorder struct {
	mu    sync.Mutex
	calls map[string][]error
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{calls: make(map[string][]error)}
}

func (r *recordingRecorder) RecordProbe(surfaceID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[surfaceID] = append(r.calls[surfaceID], err)
}

func (r *recordingRecorder) outcomes(surfaceID string) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.calls[surfaceID]...)
}

func TestProberRecordsOutcomes(t *testing.T) {
	r, err := NewRegistry(echoDefs())
	require.NoError(t, err)

	recorder := newRecordingRecorder()
	p := NewProber(r, recorder, time.Minute)

	p.probeAll()

	for _, id := range []string{"echo-a", "echo-b"} {
		outcomes := recorder.outcomes(id)
		require.Len(t, outcomes, 1)
		assert.NoError(t, outcomes[0])
	}
}

func TestProberRecordsFailures(t *testing.T) {
	// A restchat surface pointing at a closed port fails its probe
	defs := []Definition{{ID: "dead", Kind: KindRESTChat, BaseURL: "http://127.0.0.1:1", TimeoutMs: 500}}
	r, err := NewRegistry(defs)
	require.NoError(t, err)

	recorder := newRecordingRecorder()
	p := NewProber(r, recorder, time.Minute)

	p.probeAll()

	outcomes := recorder.outcomes("dead")
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0])
}

package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benthamhq/bentham/pkg/surface"
	"github.com/benthamhq/bentham/pkg/types"
)

// scriptedAdapter plays back a fixed sequence of outcomes. A nil entry
// is a success; errors are returned as-is.
type scriptedAdapter struct {
	script []error
	calls  int
}

func (a *scriptedAdapter) Query(ctx context.Context, req *surface.Request) (*surface.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var outcome error
	if a.calls < len(a.script) {
		outcome = a.script[a.calls]
	}
	a.calls++

	if outcome != nil {
		return nil, outcome
	}
	return &surface.Response{Text: fmt.Sprintf("answer %d", a.calls)}, nil
}

func (a *scriptedAdapter) HealthCheck(ctx context.Context) error { return nil }
func (a *scriptedAdapter) Close() error                          { return nil }

func fastConfig() Config {
	return Config{
		MaxRetries:   1,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Threshold:    3,
		ResetTimeout: 50 * time.Millisecond,
	}
}

func netErr() error {
	return surface.NewError(types.ErrCodeNetwork, "connection reset")
}

func TestExecutePrimarySuccess(t *testing.T) {
	m := NewManager(fastConfig(), nil)
	adapter := &scriptedAdapter{script: []error{nil}}

	res := m.Execute(context.Background(), Invocation{
		SurfaceID: "chatgpt",
		Request:   &surface.Request{Query: "q"},
		Primary:   adapter,
	})

	require.True(t, res.Success)
	assert.Equal(t, StrategyPrimary, res.Strategy)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "answer 1", res.Response.Text)
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 3
	m := NewManager(cfg, nil)
	adapter := &scriptedAdapter{script: []error{netErr(), netErr(), nil}}

	res := m.Execute(context.Background(), Invocation{
		SurfaceID: "chatgpt",
		Request:   &surface.Request{Query: "q"},
		Primary:   adapter,
	})

	require.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, res.Errors, 2)
}

func TestExecuteSessionBreakStopsRetrying(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 5
	m := NewManager(cfg, nil)
	adapter := &scriptedAdapter{script: []error{
		surface.NewError(types.ErrCodeAntiBot, "challenge page"),
		nil, // Would succeed, but must never be reached
	}}

	res := m.Execute(context.Background(), Invocation{
		SurfaceID: "chatgpt",
		Request:   &surface.Request{Query: "q"},
		Primary:   adapter,
	})

	require.False(t, res.Success)
	assert.Equal(t, 1, adapter.calls)
	assert.Equal(t, types.ErrCodeAntiBot, res.LastCode)
}

func TestExecuteInvocationRetriesOverrideDefault(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 5
	m := NewManager(cfg, nil)
	adapter := &scriptedAdapter{script: []error{netErr(), netErr(), netErr()}}

	res := m.Execute(context.Background(), Invocation{
		SurfaceID:  "chatgpt",
		Request:    &surface.Request{Query: "q"},
		Primary:    adapter,
		MaxRetries: 2,
	})

	require.False(t, res.Success)
	assert.Equal(t, 2, adapter.calls)
	assert.Equal(t, 2, res.Attempts)
}

func TestExecuteCDPFallback(t *testing.T) {
	m := NewManager(fastConfig(), nil)
	adapter := &scriptedAdapter{script: []error{netErr()}}

	res := m.Execute(context.Background(), Invocation{
		SurfaceID: "chatgpt",
		Request:   &surface.Request{Query: "q"},
		Primary:   adapter,
		Fallback: func(ctx context.Context, req *surface.Request) (*surface.Response, error) {
			return &surface.Response{Text: "rescued"}, nil
		},
	})

	require.True(t, res.Success)
	assert.Equal(t, StrategyCDPFallback, res.Strategy)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "rescued", res.Response.Text)
}

func TestExecuteAlternativeSurface(t *testing.T) {
	m := NewManager(fastConfig(), nil)
	primary := &scriptedAdapter{script: []error{netErr()}}
	altBroken := &scriptedAdapter{script: []error{netErr()}}
	altWorking := &scriptedAdapter{script: []error{nil}}

	res := m.Execute(context.Background(), Invocation{
		SurfaceID: "chatgpt",
		Request:   &surface.Request{Query: "q"},
		Primary:   primary,
		Alternates: []Alternate{
			{SurfaceID: "perplexity", Adapter: altBroken},
			{SurfaceID: "claude", Adapter: altWorking},
		},
	})

	require.True(t, res.Success)
	assert.Equal(t, StrategyAlternativeSurface, res.Strategy)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 1, altBroken.calls)
	assert.Equal(t, 1, altWorking.calls)
}

// Circuit lifecycle: threshold consecutive chain failures open the
// circuit, the next call short-circuits without touching the adapter,
// and a success after the reset interval closes it again.
func TestCircuitOpensAfterThreshold(t *testing.T) {
	m := NewManager(fastConfig(), nil)
	adapter := &scriptedAdapter{script: []error{netErr(), netErr(), netErr(), netErr()}}
	inv := Invocation{
		SurfaceID: "chatgpt",
		Request:   &surface.Request{Query: "q"},
		Primary:   adapter,
	}

	for i := 0; i < 3; i++ {
		res := m.Execute(context.Background(), inv)
		require.False(t, res.Success)
		assert.Equal(t, types.ErrCodeNetwork, res.LastCode, "call %d", i)
	}
	assert.Equal(t, 3, adapter.calls)

	res := m.Execute(context.Background(), inv)
	require.False(t, res.Success)
	assert.Equal(t, types.ErrCodeCircuitOpen, res.LastCode)
	assert.Equal(t, 0, res.Attempts)
	assert.Equal(t, 3, adapter.calls, "open circuit must not reach the adapter")

	health, ok := m.Health("chatgpt")
	require.True(t, ok)
	assert.Equal(t, types.CircuitOpen, health.State)
	assert.Equal(t, 3, health.FailureCount)

	// After the reset interval one probe is allowed; success closes
	time.Sleep(60 * time.Millisecond)
	adapter.script = append(adapter.script, nil)
	adapter.calls = len(adapter.script) - 1

	res = m.Execute(context.Background(), inv)
	require.True(t, res.Success)

	health, _ = m.Health("chatgpt")
	assert.Equal(t, types.CircuitClosed, health.State)
	assert.Equal(t, 0, health.FailureCount)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	m := NewManager(fastConfig(), nil)
	adapter := &scriptedAdapter{script: []error{netErr(), netErr(), netErr(), netErr()}}
	inv := Invocation{SurfaceID: "gemini", Request: &surface.Request{Query: "q"}, Primary: adapter}

	for i := 0; i < 3; i++ {
		m.Execute(context.Background(), inv)
	}

	time.Sleep(60 * time.Millisecond)
	res := m.Execute(context.Background(), inv) // Half-open probe fails
	require.False(t, res.Success)
	assert.Equal(t, types.ErrCodeNetwork, res.LastCode)

	res = m.Execute(context.Background(), inv)
	assert.Equal(t, types.ErrCodeCircuitOpen, res.LastCode)
}

func TestExecuteCancellationAbortsSleeps(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxRetries = 3
	cfg.BaseDelay = 10 * time.Second // Would stall the test if not aborted
	m := NewManager(cfg, nil)
	adapter := &scriptedAdapter{script: []error{netErr(), netErr()}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := m.Execute(ctx, Invocation{
		SurfaceID: "chatgpt",
		Request:   &surface.Request{Query: "q"},
		Primary:   adapter,
	})

	require.False(t, res.Success)
	assert.Equal(t, types.ErrCodeCancelled, res.LastCode)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRecordProbe(t *testing.T) {
	m := NewManager(fastConfig(), nil)

	m.RecordProbe("chatgpt", surface.NewError(types.ErrCodeTimeout, "probe timeout"))
	m.RecordProbe("chatgpt", surface.NewError(types.ErrCodeTimeout, "probe timeout"))

	health, ok := m.Health("chatgpt")
	require.True(t, ok)
	assert.Equal(t, 2, health.FailureCount)
	assert.Equal(t, string(types.ErrCodeTimeout), health.LastError)

	m.RecordProbe("chatgpt", nil)
	health, _ = m.Health("chatgpt")
	assert.Equal(t, 0, health.FailureCount)
	assert.False(t, health.LastSuccess.IsZero())
}

func TestSnapshotStableOrder(t *testing.T) {
	m := NewManager(fastConfig(), nil)
	m.RecordProbe("zeta", nil)
	m.RecordProbe("alpha", nil)
	m.RecordProbe("mid", nil)

	snapshot := m.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "alpha", snapshot[0].SurfaceID)
	assert.Equal(t, "mid", snapshot[1].SurfaceID)
	assert.Equal(t, "zeta", snapshot[2].SurfaceID)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorCode
	}{
		{"nil", nil, ""},
		{"surface error keeps code", surface.NewError(types.ErrCodeAntiBot, "wall"), types.ErrCodeAntiBot},
		{"wrapped surface error", fmt.Errorf("query: %w", surface.NewError(types.ErrCodeUpstreamRateLimit, "429")), types.ErrCodeUpstreamRateLimit},
		{"deadline", context.DeadlineExceeded, types.ErrCodeTimeout},
		{"cancelled", context.Canceled, types.ErrCodeCancelled},
		{"unknown", errors.New("boom"), types.ErrCodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := fastConfig()
	cfg.BaseDelay = 2 * time.Millisecond
	cfg.MaxDelay = 10 * time.Millisecond
	m := NewManager(cfg, nil)

	for attempt := 0; attempt < 20; attempt++ {
		d := m.backoff(attempt)
		assert.GreaterOrEqual(t, d, cfg.BaseDelay)
		assert.LessOrEqual(t, d, cfg.MaxDelay)
	}
}

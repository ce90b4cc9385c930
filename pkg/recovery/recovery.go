package recovery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/benthamhq/bentham/pkg/events"
	"github.com/benthamhq/bentham/pkg/log"
	"github.com/benthamhq/bentham/pkg/metrics"
	"github.com/benthamhq/bentham/pkg/surface"
	"github.com/benthamhq/bentham/pkg/types"
)

// Strategy tags recorded on results, naming the path that produced the
// successful response
const (
	StrategyPrimary            = "primary"
	StrategyCDPFallback        = "cdp_fallback"
	StrategyAlternativeSurface = "alternative_surface"
)

// FallbackFunc drives an out-of-band execution path, typically a CDP
// session against an already open browser tab. Invoked at most once
// per chain, after the primary adapter is exhausted.
type FallbackFunc func(ctx context.Context, req *surface.Request) (*surface.Response, error)

// Alternate is a substitute surface tried when the primary chain fails
type Alternate struct {
	SurfaceID string
	Adapter   surface.Adapter
}

// Invocation describes one guarded execution
type Invocation struct {
	SurfaceID  string
	Request    *surface.Request
	Primary    surface.Adapter
	Alternates []Alternate
	Fallback   FallbackFunc

	// MaxRetries bounds attempts against the primary adapter.
	// Zero or negative falls back to the manager's default.
	MaxRetries int
}

// Result is the outcome of one guarded execution
type Result struct {
	Success   bool
	Strategy  string
	Attempts  int
	ElapsedMs int64
	Errors    []string
	LastCode  types.ErrorCode
	Response  *surface.Response
}

// Config tunes retry pacing and circuit breaking
type Config struct {
	MaxRetries   int           // Default attempts against the primary adapter
	BaseDelay    time.Duration // Constant retry delay; also the backoff base
	MaxDelay     time.Duration // Backoff cap
	Threshold    int           // Consecutive chain failures before the circuit opens
	ResetTimeout time.Duration // Open duration before a half-open probe is allowed
}

// DefaultConfig returns production retry and breaker settings
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		BaseDelay:    2 * time.Second,
		MaxDelay:     60 * time.Second,
		Threshold:    5,
		ResetTimeout: 60 * time.Second,
	}
}

// Manager guards adapter execution per surface. One breaker and one
// health record exist per surface id; all executor workers share them.
type Manager struct {
	cfg    Config
	broker *events.Broker

	breakers map[string]*gobreaker.CircuitBreaker
	health   map[string]*types.SurfaceHealth
	mu       sync.Mutex

	logger zerolog.Logger
}

// NewManager creates a recovery manager. broker may be nil; circuit
// transitions are then only logged.
func NewManager(cfg Config, broker *events.Broker) *Manager {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.Threshold < 1 {
		cfg.Threshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}

	return &Manager{
		cfg:      cfg,
		broker:   broker,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		health:   make(map[string]*types.SurfaceHealth),
		logger:   log.WithComponent("recovery"),
	}
}

// Execute runs the failover chain for one cell. The chain counts as a
// single breaker execution: an open circuit rejects it up front with
// CIRCUIT_OPEN and zero attempts, and only a fully failed chain records
// a failure against the surface.
func (m *Manager) Execute(ctx context.Context, inv Invocation) *Result {
	res := &Result{}
	start := time.Now()

	breaker := m.breaker(inv.SurfaceID)
	out, err := breaker.Execute(func() (interface{}, error) {
		return m.runChain(ctx, inv, res)
	})
	res.ElapsedMs = time.Since(start).Milliseconds()

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		res.LastCode = types.ErrCodeCircuitOpen
		res.Errors = append(res.Errors, fmt.Sprintf("%s: circuit open for surface %s", types.ErrCodeCircuitOpen, inv.SurfaceID))
		metrics.RecoveryAttempts.WithLabelValues(inv.SurfaceID, "short_circuit").Inc()
		return res
	}

	if err != nil {
		m.recordFailure(inv.SurfaceID, res.LastCode)
		metrics.RecoveryAttempts.WithLabelValues(inv.SurfaceID, "exhausted").Inc()
		return res
	}

	res.Success = true
	res.Response = out.(*surface.Response)
	m.recordSuccess(inv.SurfaceID)
	metrics.RecoveryAttempts.WithLabelValues(inv.SurfaceID, res.Strategy).Inc()
	return res
}

// runChain walks primary retries, the CDP fallback, then alternates.
// The returned error is the last classified failure; a nil error means
// res.Response came from the path named by res.Strategy.
func (m *Manager) runChain(ctx context.Context, inv Invocation, res *Result) (*surface.Response, error) {
	maxAttempts := inv.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = m.cfg.MaxRetries
	}

	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := m.checkCancelled(ctx, res); err != nil {
			return nil, err
		}

		res.Attempts++
		resp, err := inv.Primary.Query(ctx, inv.Request)
		if err == nil {
			res.Strategy = StrategyPrimary
			return resp, nil
		}

		code := Classify(err)
		res.LastCode = code
		res.Errors = append(res.Errors, fmt.Sprintf("primary attempt %d: %v", res.Attempts, err))
		lastErr = err

		if code == types.ErrCodeCancelled {
			return nil, lastErr
		}
		if code.BreaksSession() || !code.Retryable() {
			// Repeating the call on this adapter cannot succeed
			break
		}
		if attempt == maxAttempts-1 {
			break
		}

		delay := m.cfg.BaseDelay
		if code == types.ErrCodeUpstreamRateLimit {
			delay = m.backoff(attempt)
		}
		if err := m.sleep(ctx, delay, res); err != nil {
			return nil, err
		}
	}

	if inv.Fallback != nil {
		if err := m.checkCancelled(ctx, res); err != nil {
			return nil, err
		}

		res.Attempts++
		resp, err := inv.Fallback(ctx, inv.Request)
		if err == nil {
			res.Strategy = StrategyCDPFallback
			return resp, nil
		}

		res.LastCode = Classify(err)
		res.Errors = append(res.Errors, fmt.Sprintf("cdp fallback: %v", err))
		lastErr = err
	}

	for _, alt := range inv.Alternates {
		if err := m.checkCancelled(ctx, res); err != nil {
			return nil, err
		}

		res.Attempts++
		resp, err := alt.Adapter.Query(ctx, inv.Request)
		if err == nil {
			res.Strategy = StrategyAlternativeSurface
			return resp, nil
		}

		res.LastCode = Classify(err)
		res.Errors = append(res.Errors, fmt.Sprintf("alternate %s: %v", alt.SurfaceID, err))
		lastErr = err
	}

	if lastErr == nil {
		lastErr = surface.NewError(types.ErrCodeUnknown, "no execution path available")
		res.LastCode = types.ErrCodeUnknown
		res.Errors = append(res.Errors, lastErr.Error())
	}
	return nil, lastErr
}

func (m *Manager) checkCancelled(ctx context.Context, res *Result) error {
	if err := ctx.Err(); err != nil {
		res.LastCode = types.ErrCodeCancelled
		res.Errors = append(res.Errors, fmt.Sprintf("%s: execution aborted", types.ErrCodeCancelled))
		return err
	}
	return nil
}

// backoff computes the rate-limit delay for the given attempt:
// min(base * 2^attempt + jitter, cap) with jitter in [0, base)
func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.cfg.BaseDelay << uint(attempt)
	if delay <= 0 || delay > m.cfg.MaxDelay {
		return m.cfg.MaxDelay
	}
	delay += time.Duration(rand.Int63n(int64(m.cfg.BaseDelay)))
	if delay > m.cfg.MaxDelay {
		return m.cfg.MaxDelay
	}
	return delay
}

// sleep waits out a retry delay, aborting when the context is cancelled
func (m *Manager) sleep(ctx context.Context, delay time.Duration, res *Result) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		res.LastCode = types.ErrCodeCancelled
		res.Errors = append(res.Errors, fmt.Sprintf("%s: retry wait aborted", types.ErrCodeCancelled))
		return ctx.Err()
	}
}

// breaker returns the surface's circuit breaker, creating it on first
// use
func (m *Manager) breaker(surfaceID string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[surfaceID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        surfaceID,
		MaxRequests: 1, // One half-open probe; its outcome decides the state
		Timeout:     m.cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(m.cfg.Threshold)
		},
		OnStateChange: m.onStateChange,
	})
	m.breakers[surfaceID] = cb
	m.health[surfaceID] = &types.SurfaceHealth{SurfaceID: surfaceID, State: types.CircuitClosed}
	return cb
}

func (m *Manager) onStateChange(name string, from, to gobreaker.State) {
	m.logger.Warn().
		Str("surface_id", name).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Circuit state changed")

	if m.broker == nil {
		return
	}
	switch to {
	case gobreaker.StateOpen:
		m.broker.Publish(&events.Event{
			Type:      events.EventCircuitOpened,
			SurfaceID: name,
			Message:   "circuit opened after consecutive failures",
		})
	case gobreaker.StateClosed:
		m.broker.Publish(&events.Event{
			Type:      events.EventCircuitClosed,
			SurfaceID: name,
			Message:   "circuit closed",
		})
	}
}

func (m *Manager) recordSuccess(surfaceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.healthLocked(surfaceID)
	h.LastSuccess = time.Now()
	h.FailureCount = 0
	h.LastError = ""
}

func (m *Manager) recordFailure(surfaceID string, code types.ErrorCode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.healthLocked(surfaceID)
	h.LastFailure = time.Now()
	h.FailureCount++
	h.LastError = string(code)
}

// RecordProbe folds a background health check outcome into the
// surface's health record. Probes never move the circuit breaker; only
// real execution does.
func (m *Manager) RecordProbe(surfaceID string, err error) {
	if err == nil {
		m.recordSuccess(surfaceID)
		return
	}
	m.recordFailure(surfaceID, Classify(err))
}

// healthLocked returns the surface's health record, creating it if
// needed. Callers hold m.mu.
func (m *Manager) healthLocked(surfaceID string) *types.SurfaceHealth {
	h, ok := m.health[surfaceID]
	if !ok {
		h = &types.SurfaceHealth{SurfaceID: surfaceID, State: types.CircuitClosed}
		m.health[surfaceID] = h
	}
	return h
}

// Health returns a copy of one surface's health record
func (m *Manager) Health(surfaceID string) (types.SurfaceHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.health[surfaceID]
	if !ok {
		return types.SurfaceHealth{}, false
	}
	snapshot := *h
	if cb, ok := m.breakers[surfaceID]; ok {
		snapshot.State = circuitState(cb.State())
	}
	return snapshot, true
}

// Snapshot returns every surface's health record in stable order
func (m *Manager) Snapshot() []types.SurfaceHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.SurfaceHealth, 0, len(m.health))
	for id, h := range m.health {
		snapshot := *h
		if cb, ok := m.breakers[id]; ok {
			snapshot.State = circuitState(cb.State())
		}
		out = append(out, snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SurfaceID < out[j].SurfaceID })
	return out
}

func circuitState(s gobreaker.State) types.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return types.CircuitOpen
	case gobreaker.StateHalfOpen:
		return types.CircuitHalfOpen
	default:
		return types.CircuitClosed
	}
}

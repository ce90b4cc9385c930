package surface

import (
	"context"
	"time"

	"github.com/benthamhq/bentham/pkg/log"
)

// HealthRecorder receives probe outcomes. Implemented by the recovery
// manager, which folds them into its per-surface health records.
type HealthRecorder interface {
	RecordProbe(surfaceID string, err error)
}

// Prober runs background health checks against every registered
// surface so that health state reflects reality even when no study is
// executing.
type Prober struct {
	registry *Registry
	recorder HealthRecorder
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
}

// NewProber creates a prober over the registry's surfaces
func NewProber(registry *Registry, recorder HealthRecorder, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Prober{
		registry: registry,
		recorder: recorder,
		interval: interval,
		timeout:  10 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins probing
func (p *Prober) Start() {
	go p.run()
}

// Stop stops probing
func (p *Prober) Stop() {
	close(p.stopCh)
}

func (p *Prober) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Probe immediately so health state is populated at startup
	p.probeAll()

	for {
		select {
		case <-ticker.C:
			p.probeAll()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Prober) probeAll() {
	logger := log.WithComponent("prober")

	for _, id := range p.registry.IDs() {
		adapter, err := p.registry.Adapter(id)
		if err != nil {
			p.recorder.RecordProbe(id, err)
			logger.Warn().Str("surface_id", id).Err(err).Msg("Surface unavailable")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err = adapter.HealthCheck(ctx)
		cancel()

		p.recorder.RecordProbe(id, err)
		if err != nil {
			logger.Warn().Str("surface_id", id).Err(err).Msg("Surface health check failed")
		}
	}
}

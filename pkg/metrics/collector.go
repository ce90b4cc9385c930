package metrics

import (
	"time"

	"github.com/benthamhq/bentham/pkg/storage"
	"github.com/benthamhq/bentham/pkg/types"
)

// HealthSource exposes circuit breaker state for gauge sampling.
// Implemented by the recovery manager.
type HealthSource interface {
	Snapshot() []types.SurfaceHealth
}

// Collector samples store state into gauges on an interval
type Collector struct {
	store  storage.Store
	health HealthSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector. health may be nil.
func NewCollector(store storage.Store, health HealthSource) *Collector {
	return &Collector{
		store:  store,
		health: health,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectStudyMetrics()
	c.collectCircuitMetrics()
}

func (c *Collector) collectStudyMetrics() {
	studies, err := c.store.ListStudiesByStatus(
		types.StudyStatusValidating,
		types.StudyStatusQueued,
		types.StudyStatusExecuting,
		types.StudyStatusPaused,
		types.StudyStatusCompleted,
		types.StudyStatusFailed,
		types.StudyStatusCancelled,
	)
	if err != nil {
		return
	}

	studyCounts := make(map[types.StudyStatus]int)
	jobCounts := make(map[types.JobStatus]int)

	for _, study := range studies {
		studyCounts[study.Status]++

		jobs, err := c.store.ListJobsByStudy(study.ID)
		if err != nil {
			continue
		}
		for _, job := range jobs {
			jobCounts[job.Status]++
		}
	}

	for status, count := range studyCounts {
		StudiesTotal.WithLabelValues(string(status)).Set(float64(count))
	}
	for status, count := range jobCounts {
		JobsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectCircuitMetrics() {
	if c.health == nil {
		return
	}

	for _, health := range c.health.Snapshot() {
		var value float64
		switch health.State {
		case types.CircuitHalfOpen:
			value = 1
		case types.CircuitOpen:
			value = 2
		}
		CircuitState.WithLabelValues(health.SurfaceID).Set(value)
	}
}

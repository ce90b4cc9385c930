package orchestrator

import (
	"time"

	"github.com/benthamhq/bentham/pkg/events"
	"github.com/benthamhq/bentham/pkg/storage"
	"github.com/benthamhq/bentham/pkg/types"
)

// Monitor is the orchestrator's background loop: it fails studies
// whose deadline passed while nothing was executing a cell, and
// re-kicks studies found mid-flight at boot.
type Monitor struct {
	orch     *Orchestrator
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewMonitor creates a monitor sweeping at the given interval
func NewMonitor(orch *Orchestrator, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		orch:     orch,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs startup recovery, then begins sweeping
func (m *Monitor) Start() {
	m.orch.Recover()
	go m.run()
}

// Stop stops the sweep loop
func (m *Monitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *Monitor) run() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.orch.sweepDeadlines()
		case <-m.stopCh:
			return
		}
	}
}

// Recover re-kicks studies that were mid-flight when the process last
// stopped. Queued studies start fresh; executing studies re-launch and
// re-claim whatever cells are still pending. Claims are CAS, so cells
// finished before the restart are never re-run.
func (o *Orchestrator) Recover() {
	queued, err := o.store.ListStudiesByStatus(types.StudyStatusQueued)
	if err == nil {
		for _, study := range queued {
			o.logger.Info().Str("study_id", study.ID).Msg("Recovering queued study")
			o.start(study)
		}
	}

	executing, err := o.store.ListStudiesByStatus(types.StudyStatusExecuting)
	if err == nil {
		for _, study := range executing {
			o.logger.Info().Str("study_id", study.ID).Msg("Recovering executing study")
			o.executor.Launch(study)
		}
	}
}

// sweepDeadlines fails executing and paused studies whose deadline has
// passed. The executor handles deadlines on active studies as cells
// finish; this sweep catches studies with nothing in flight, paused
// studies in particular.
func (o *Orchestrator) sweepDeadlines() {
	studies, err := o.store.ListStudiesByStatus(types.StudyStatusExecuting, types.StudyStatusPaused)
	if err != nil {
		return
	}

	now := time.Now()
	for _, study := range studies {
		if !now.After(study.Manifest.Deadline) {
			continue
		}

		if _, err := o.store.TerminateStudy(study.ID, types.StudyStatusFailed, string(types.ErrCodeDeadlineExceeded)); err != nil {
			continue
		}

		o.executor.Cancel(study.ID)
		if n, err := o.store.FailPendingJobs(study.ID, types.ErrCodeDeadlineExceeded); err == nil && n > 0 {
			o.store.AddStudyProgress(study.ID, storage.ProgressDelta{Failed: n})
		}
		o.publish(events.EventStudyFailed, study, string(types.ErrCodeDeadlineExceeded))
	}
}

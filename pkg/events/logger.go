package events

import (
	"github.com/rs/zerolog"

	"github.com/benthamhq/bentham/pkg/log"
)

// LogSubscriber drains a broker subscription into the structured log.
// Started once at boot; stops when the subscription channel closes.
type LogSubscriber struct {
	broker *Broker
	sub    Subscriber
	logger zerolog.Logger
	doneCh chan struct{}
}

// NewLogSubscriber subscribes to the broker and starts draining
func NewLogSubscriber(broker *Broker) *LogSubscriber {
	s := &LogSubscriber{
		broker: broker,
		sub:    broker.Subscribe(),
		logger: log.WithComponent("events"),
		doneCh: make(chan struct{}),
	}
	go s.run()
	return s
}

// Stop unsubscribes and waits for the drain loop to exit
func (s *LogSubscriber) Stop() {
	s.broker.Unsubscribe(s.sub)
	<-s.doneCh
}

func (s *LogSubscriber) run() {
	defer close(s.doneCh)
	for event := range s.sub {
		entry := s.logger.Info()
		if event.Type == EventStudyFailed || event.Type == EventJobFailed || event.Type == EventCircuitOpened {
			entry = s.logger.Warn()
		}
		if event.TenantID != "" {
			entry = entry.Str("tenant_id", event.TenantID)
		}
		if event.StudyID != "" {
			entry = entry.Str("study_id", event.StudyID)
		}
		if event.JobID != "" {
			entry = entry.Str("job_id", event.JobID)
		}
		if event.SurfaceID != "" {
			entry = entry.Str("surface_id", event.SurfaceID)
		}
		entry.Str("event", string(event.Type)).Msg(event.Message)
	}
}

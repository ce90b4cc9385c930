/*
Package events provides an in-memory event broker for Bentham's pub/sub
messaging.

The events package implements a lightweight event bus for broadcasting
study and execution events to interested subscribers. It supports
asynchronous event delivery with non-blocking publish, enabling loose
coupling between the orchestrator, executor, recovery manager, and
observers such as the logging subscriber.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  Publisher → Event Channel (buffer: 100)                  │
	│       ↓                                                    │
	│  Broadcast Loop                                            │
	│       ↓                                                    │
	│  Subscriber Channels (buffer: 50 each)                    │
	│                                                            │
	│  Study Events:   study.created, study.queued,             │
	│                  study.started, study.paused,             │
	│                  study.resumed, study.completed,          │
	│                  study.failed, study.cancelled            │
	│  Job Events:     job.started, job.succeeded, job.failed   │
	│  Circuit Events: circuit.opened, circuit.closed           │
	└────────────────────────────────────────────────────────┘

Publish never blocks the caller: events flow through a buffered channel
and slow subscribers are skipped rather than applying backpressure to
the execution path. Event delivery is therefore best-effort; the store
remains the source of truth for study state.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for event := range sub {
			fmt.Println(event.Type, event.StudyID)
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventStudyCompleted,
		StudyID: "study-1",
	})

LogSubscriber wires the broker into the structured log at boot so every
lifecycle transition is visible in operator logs without any component
logging twice.
*/
package events

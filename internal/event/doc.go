/*
Package event is the runtime's in-process notification bus.

The scheduled-run controller publishes here, including from the DAG
runner hooks it wires; the HTTP control plane's events stream endpoint
consumes the bus through Stream to push updates without polling the store
directly.

# Architecture

The package is built on top of watermill's gochannel for infrastructure
while keeping direct, type-preserving Go function calls as the subscriber
contract rather than requiring consumers to decode a wire envelope.

# Event Types

Issue Events:
  - issue.created, issue.updated, issue.closed

Forum Events:
  - forum.posted

Run Events:
  - run.queued, run.started, run.step_done, run.finished

Heartbeat Events:
  - heartbeat.fired, heartbeat.disabled

Cron Events:
  - cron.fired, cron.disabled

Operator Events:
  - operator.turn

# Basic Usage

	unsubscribe := event.Subscribe(event.RunFinished, func(e event.Event) {
		data := e.Data.(event.RunFinishedData)
		log.Info().Str("job_id", data.JobID).Msg("run finished")
	})
	defer unsubscribe()

	event.Publish(event.Event{
		Type: event.RunFinished,
		Data: event.RunFinishedData{JobID: jobID, Status: "success"},
	})

Subscribing to all events:

	unsubscribe := event.SubscribeAll(func(e event.Event) {
		log.Debug().Str("type", string(e.Type)).Msg("event")
	})
	defer unsubscribe()

# Subscriber Safety Guidelines

When using PublishSync, subscribers are called synchronously in the
publisher's goroutine. To avoid blocking or deadlocks, subscribers MUST:

  - Complete quickly (avoid long-running operations)
  - Never call Publish/PublishSync from within a subscriber (no re-entrant publishing)
  - Never acquire locks that the publisher might hold

# Streaming

Long-lived consumers that want a channel instead of a callback — the HTTP
control plane's GET /api/events/stream handler, for one — subscribe
through the same watermill gochannel via Stream:

	events, err := event.Stream(ctx)
	for e := range events {
		// e.Type, e.Data
	}

# Custom Event Bus

For testing or isolation, create an independent bus instance:

	bus := event.NewBus()
	defer bus.Close()

	unsub := bus.Subscribe(event.RunFinished, handler)
	bus.PublishSync(event.Event{Type: event.RunFinished, Data: data})

# Testing

	// Reset global bus state (use in test cleanup)
	event.Reset()

# Thread Safety

The event bus is safe for concurrent use. Both publishing and subscribing
are protected by internal synchronization.

# Integration with Watermill

	pubsub := event.PubSub()
	// Use watermill features like middleware, routing, etc.

This keeps the door open to a distributed broker backend without changing
the subscriber API.
*/
package event

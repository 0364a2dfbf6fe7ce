// Package event provides a synchronous pub-sub bus carrying release
// lifecycle events.
//
// The flow runner and the group scheduler publish events without knowing
// who listens; metrics collectors and progress logging subscribe to them.
//
// # Event Types
//
// Step lifecycle:
//   - [StepStartedEvent]: a step body started
//   - [StepFinishedEvent]: a step reached a terminal state
//
// Project lifecycle:
//   - [ProjectFinishedEvent]: a project's flow ended
//
// Group lifecycle:
//   - [GroupStartedEvent], [GroupFinishedEvent]
//   - [GroupTimedOutEvent]: the group timeout expired with projects still running
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers run synchronously on the
// publishing goroutine, so they must be safe for concurrent calls when
// several projects run in parallel. A panicking handler is logged and does
// not prevent other handlers from running.
//
// # Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeStepFinished, func(e event.Event) {
//	    finished := e.(event.StepFinishedEvent)
//	    logger.Info("step finished", "project", finished.Project, "step", finished.Step)
//	})
//	bus.Publish(event.NewStepStartedEvent("spring-cloud-sleuth", "build"))
package event

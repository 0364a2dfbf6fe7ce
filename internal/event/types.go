package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns the "category.action" identifier of the event.
	EventType() string
	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event types published during a release.
const (
	TypeStepStarted     = "step.started"
	TypeStepFinished    = "step.finished"
	TypeProjectFinished = "project.finished"
	TypeGroupStarted    = "group.started"
	TypeGroupFinished   = "group.finished"
	TypeGroupTimedOut   = "group.timed_out"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// -----------------------------------------------------------------------------
// Step Events
// -----------------------------------------------------------------------------

// StepStartedEvent is emitted when a step body starts running.
type StepStartedEvent struct {
	baseEvent
	Project string
	Step    string
}

// NewStepStartedEvent creates a StepStartedEvent.
func NewStepStartedEvent(project, step string) StepStartedEvent {
	return StepStartedEvent{baseEvent: newBaseEvent(TypeStepStarted), Project: project, Step: step}
}

// StepFinishedEvent is emitted when a step reaches a terminal state, whether
// it ran, was skipped or was never attempted.
type StepFinishedEvent struct {
	baseEvent
	Project  string
	Step     string
	State    string // terminal state name, e.g. "SUCCEEDED"
	Outcome  string // outcome name, e.g. "UNSTABLE"
	Duration time.Duration
	Err      error
}

// NewStepFinishedEvent creates a StepFinishedEvent.
func NewStepFinishedEvent(project, step, state, outcome string, duration time.Duration, err error) StepFinishedEvent {
	return StepFinishedEvent{
		baseEvent: newBaseEvent(TypeStepFinished),
		Project:   project,
		Step:      step,
		State:     state,
		Outcome:   outcome,
		Duration:  duration,
		Err:       err,
	}
}

// -----------------------------------------------------------------------------
// Project Events
// -----------------------------------------------------------------------------

// ProjectFinishedEvent is emitted when a project's flow ends.
type ProjectFinishedEvent struct {
	baseEvent
	Project  string
	Status   string // verdict status, e.g. "FAILURE"
	Aborted  bool
	AbortAll bool
	Duration time.Duration
}

// NewProjectFinishedEvent creates a ProjectFinishedEvent.
func NewProjectFinishedEvent(project, status string, aborted, abortAll bool, duration time.Duration) ProjectFinishedEvent {
	return ProjectFinishedEvent{
		baseEvent: newBaseEvent(TypeProjectFinished),
		Project:   project,
		Status:    status,
		Aborted:   aborted,
		AbortAll:  abortAll,
		Duration:  duration,
	}
}

// -----------------------------------------------------------------------------
// Group Events
// -----------------------------------------------------------------------------

// GroupStartedEvent is emitted when a release group starts.
type GroupStartedEvent struct {
	baseEvent
	Group    int // 1-based position of the group
	Projects []string
}

// NewGroupStartedEvent creates a GroupStartedEvent.
func NewGroupStartedEvent(group int, projects []string) GroupStartedEvent {
	return GroupStartedEvent{baseEvent: newBaseEvent(TypeGroupStarted), Group: group, Projects: projects}
}

// GroupFinishedEvent is emitted when every project of a group finished or
// the group timed out.
type GroupFinishedEvent struct {
	baseEvent
	Group    int
	Status   string
	Duration time.Duration
}

// NewGroupFinishedEvent creates a GroupFinishedEvent.
func NewGroupFinishedEvent(group int, status string, duration time.Duration) GroupFinishedEvent {
	return GroupFinishedEvent{baseEvent: newBaseEvent(TypeGroupFinished), Group: group, Status: status, Duration: duration}
}

// GroupTimedOutEvent is emitted when a group's timeout expires with
// projects still running. Their processes are not killed.
type GroupTimedOutEvent struct {
	baseEvent
	Group       int
	Timeout     time.Duration
	Outstanding []string
}

// NewGroupTimedOutEvent creates a GroupTimedOutEvent.
func NewGroupTimedOutEvent(group int, timeout time.Duration, outstanding []string) GroupTimedOutEvent {
	return GroupTimedOutEvent{
		baseEvent:   newBaseEvent(TypeGroupTimedOut),
		Group:       group,
		Timeout:     timeout,
		Outstanding: outstanding,
	}
}

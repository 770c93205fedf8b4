package tracker

import "formlo/internal/api"

// Phase is the client-side view of the tracked job lifecycle. It extends
// the backend statuses with outcomes only the client can observe: a poll
// transport failure and the optional overall poll timeout.
type Phase string

const (
	// PhaseIdle means no job is being tracked.
	PhaseIdle Phase = "idle"
	// PhaseTracking means a job was submitted and polling is active.
	PhaseTracking Phase = "tracking"
	// PhaseCompleted mirrors the backend terminal completed status.
	PhaseCompleted Phase = "completed"
	// PhaseFailed mirrors the backend terminal failed status.
	PhaseFailed Phase = "failed"
	// PhaseTimedOut means the poll timeout elapsed before a terminal
	// status was observed. Distinct from failed: the job may still be
	// running server-side.
	PhaseTimedOut Phase = "timed_out"
	// PhaseStalled means a poll failed at the transport level. The job is
	// left in its last-known state and observation has stopped.
	PhaseStalled Phase = "stalled"
)

// EventKind discriminates tracker signals.
type EventKind string

const (
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventTimedOut  EventKind = "timed_out"
	EventStalled   EventKind = "stalled"
)

// Event is the one-shot signal a poll loop emits when it stops. Exactly
// one event is emitted per submitted job.
type Event struct {
	Kind EventKind
	Job  api.ConversionJob
}

// Snapshot is a copy of the tracker's current state, safe to retain.
type Snapshot struct {
	Phase    Phase
	Filename string
	Job      *api.ConversionJob
}

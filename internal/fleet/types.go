package fleet

import (
	"github.com/samber/lo"
)

// OperationKind enumerates the repository operations repoteer can schedule.
type OperationKind string

// Supported operation kinds, in their fixed execution order.
const (
	OperationClone  OperationKind = "clone"
	OperationPull   OperationKind = "pull"
	OperationPush   OperationKind = "push"
	OperationStatus OperationKind = "status"
)

// OutcomeStatus enumerates the terminal states of one (repository, operation) pair.
type OutcomeStatus string

// Possible outcome statuses.
const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// OperationOutcome records the terminal state of one operation against one
// repository. Outcomes are append-only events; they are never mutated after
// emission and the reporter derives every displayed status from them alone.
type OperationOutcome struct {
	RepositoryPath string
	RepositoryName string
	Operation      OperationKind
	Status         OutcomeStatus
	// Reason carries the skip explanation or a one-line failure description.
	Reason string
	// Detail carries captured diagnostic text from the external tool on failure.
	Detail string
}

// ProgressEventType distinguishes the notifications flowing through the event sink.
type ProgressEventType string

// Progress event types.
const (
	ProgressEventOperationStarted ProgressEventType = "operation_started"
	ProgressEventOutcome          ProgressEventType = "outcome"
)

// ProgressEvent is one notification emitted by an operation runner. Every
// event carries the originating repository's identity so the reporter can
// route it to the correct display region.
type ProgressEvent struct {
	RepositoryPath string
	RepositoryName string
	Type           ProgressEventType
	Operation      OperationKind
	Outcome        *OperationOutcome
}

// EventSink receives progress events from concurrently executing runners.
// Implementations must be safe for concurrent publishers.
type EventSink interface {
	Publish(event ProgressEvent)
}

// ChannelEventSink publishes events to a Go channel, preserving per-publisher
// ordering and delivering each event atomically.
type ChannelEventSink struct {
	events chan<- ProgressEvent
}

// NewChannelEventSink constructs an EventSink backed by the supplied channel.
func NewChannelEventSink(events chan<- ProgressEvent) *ChannelEventSink {
	return &ChannelEventSink{events: events}
}

// Publish implements EventSink by sending the event to the underlying channel.
func (sink *ChannelEventSink) Publish(event ProgressEvent) {
	if sink == nil || sink.events == nil {
		return
	}
	sink.events <- event
}

// RunSummary aggregates the outcome counts of one repository's operation sequence.
type RunSummary struct {
	Succeeded int
	Skipped   int
	Failed    int
}

// AggregateResult collects every outcome of one run across all repositories.
type AggregateResult struct {
	Outcomes []OperationOutcome
}

// Summary tallies outcome counts across the whole run.
func (result AggregateResult) Summary() RunSummary {
	statusCounts := lo.CountValuesBy(result.Outcomes, func(outcome OperationOutcome) OutcomeStatus {
		return outcome.Status
	})
	return RunSummary{
		Succeeded: statusCounts[OutcomeSucceeded],
		Skipped:   statusCounts[OutcomeSkipped],
		Failed:    statusCounts[OutcomeFailed],
	}
}

// Failures returns every failed outcome in emission order.
func (result AggregateResult) Failures() []OperationOutcome {
	return lo.Filter(result.Outcomes, func(outcome OperationOutcome, _ int) bool {
		return outcome.Status == OutcomeFailed
	})
}

// HasFailures reports whether any operation failed during the run.
func (result AggregateResult) HasFailures() bool {
	return lo.SomeBy(result.Outcomes, func(outcome OperationOutcome) bool {
		return outcome.Status == OutcomeFailed
	})
}

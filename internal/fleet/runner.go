package fleet

import (
	"context"
	"errors"

	"github.com/repoteer/repoteer/internal/manifest"
)

const (
	repositoryServiceMissingMessageConstant = "repository service must be provided"
	eventSinkMissingMessageConstant         = "event sink must be provided"
	runCanceledReasonConstant               = "run canceled"
	probeFailedReasonConstant               = "unable to inspect repository"
)

// ErrRepositoryServiceNotConfigured indicates the repository service dependency was missing.
var ErrRepositoryServiceNotConfigured = errors.New(repositoryServiceMissingMessageConstant)

// ErrEventSinkNotConfigured indicates the event sink dependency was missing.
var ErrEventSinkNotConfigured = errors.New(eventSinkMissingMessageConstant)

// OperationRunner drives one repository through its permitted operation
// sequence, strictly in order, emitting exactly one outcome event per
// requested operation.
type OperationRunner struct {
	repositoryService RepositoryService
	policyEvaluator   PolicyEvaluator
	policy            SyncPolicy
	eventSink         EventSink
}

// NewOperationRunner constructs an OperationRunner after validating its dependencies.
func NewOperationRunner(repositoryService RepositoryService, policy SyncPolicy, eventSink EventSink) (*OperationRunner, error) {
	if repositoryService == nil {
		return nil, ErrRepositoryServiceNotConfigured
	}
	if eventSink == nil {
		return nil, ErrEventSinkNotConfigured
	}
	return &OperationRunner{repositoryService: repositoryService, policy: policy, eventSink: eventSink}, nil
}

// Run executes the requested operations against one repository. Every
// requested operation reaches a terminal outcome: succeeded, skipped, or
// failed. A failing operation never aborts the remainder of the sequence
// beyond the clone prerequisite rule.
func (runner *OperationRunner) Run(executionContext context.Context, specification manifest.RepoSpec, requestedOperations []OperationKind) RunSummary {
	runSummary := RunSummary{}

	observedState, probeError := runner.repositoryService.Probe(executionContext, specification)
	if probeError != nil {
		for operationIndex, requestedOperation := range requestedOperations {
			if operationIndex == 0 {
				runner.emitOutcome(&runSummary, specification, requestedOperation, OutcomeFailed, probeFailedReasonConstant, probeError.Error())
				continue
			}
			runner.emitOutcome(&runSummary, specification, requestedOperation, OutcomeSkipped, prerequisiteFailedReasonConstant, "")
		}
		return runSummary
	}

	decisions := runner.policyEvaluator.EvaluateOperations(specification, observedState, requestedOperations, runner.policy)
	cloneFailed := false

	for decisionIndex := 0; decisionIndex < len(decisions); decisionIndex++ {
		decision := decisions[decisionIndex]

		if executionContext.Err() != nil {
			runner.emitOutcome(&runSummary, specification, decision.Operation, OutcomeSkipped, runCanceledReasonConstant, "")
			continue
		}

		if cloneFailed && decision.Operation != OperationStatus {
			runner.emitOutcome(&runSummary, specification, decision.Operation, OutcomeSkipped, prerequisiteFailedReasonConstant, "")
			continue
		}

		if !decision.Allowed {
			runner.emitOutcome(&runSummary, specification, decision.Operation, OutcomeSkipped, decision.Reason, "")
			continue
		}

		runner.eventSink.Publish(ProgressEvent{
			RepositoryPath: specification.Path,
			RepositoryName: specification.Name(),
			Type:           ProgressEventOperationStarted,
			Operation:      decision.Operation,
		})

		switch decision.Operation {
		case OperationClone:
			cloneError := runner.repositoryService.Clone(executionContext, specification)
			if cloneError != nil {
				cloneFailed = true
				runner.emitOutcome(&runSummary, specification, OperationClone, OutcomeFailed, cloneError.Error(), cloneError.Error())
				continue
			}
			runner.emitOutcome(&runSummary, specification, OperationClone, OutcomeSucceeded, "", "")

			// Later decisions were made against pre-clone state; refresh so
			// pull and push are judged against the working copy that now exists.
			refreshedState, refreshError := runner.repositoryService.Probe(executionContext, specification)
			if refreshError == nil {
				observedState = refreshedState
				remainingOperations := make([]OperationKind, 0, len(decisions)-decisionIndex-1)
				for _, remainingDecision := range decisions[decisionIndex+1:] {
					remainingOperations = append(remainingOperations, remainingDecision.Operation)
				}
				refreshedDecisions := runner.policyEvaluator.EvaluateOperations(specification, observedState, remainingOperations, runner.policy)
				copy(decisions[decisionIndex+1:], refreshedDecisions)
			}
		case OperationPull:
			pullError := runner.repositoryService.Pull(executionContext, specification)
			if pullError != nil {
				runner.emitOutcome(&runSummary, specification, OperationPull, OutcomeFailed, pullError.Error(), pullError.Error())
				continue
			}
			runner.emitOutcome(&runSummary, specification, OperationPull, OutcomeSucceeded, "", "")
		case OperationPush:
			pushError := runner.repositoryService.Push(executionContext, specification, runner.policy.ForcePush)
			if pushError != nil {
				runner.emitOutcome(&runSummary, specification, OperationPush, OutcomeFailed, pushError.Error(), pushError.Error())
				continue
			}
			runner.emitOutcome(&runSummary, specification, OperationPush, OutcomeSucceeded, "", "")
		case OperationStatus:
			runner.emitOutcome(&runSummary, specification, OperationStatus, OutcomeSucceeded, observedState.Describe(), "")
		}
	}

	return runSummary
}

func (runner *OperationRunner) emitOutcome(
	runSummary *RunSummary,
	specification manifest.RepoSpec,
	operation OperationKind,
	status OutcomeStatus,
	reason string,
	detail string,
) {
	switch status {
	case OutcomeSucceeded:
		runSummary.Succeeded++
	case OutcomeSkipped:
		runSummary.Skipped++
	case OutcomeFailed:
		runSummary.Failed++
	}

	outcome := OperationOutcome{
		RepositoryPath: specification.Path,
		RepositoryName: specification.Name(),
		Operation:      operation,
		Status:         status,
		Reason:         reason,
		Detail:         detail,
	}
	runner.eventSink.Publish(ProgressEvent{
		RepositoryPath: specification.Path,
		RepositoryName: specification.Name(),
		Type:           ProgressEventOutcome,
		Operation:      operation,
		Outcome:        &outcome,
	})
}

package fleet

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/repoteer/repoteer/internal/manifest"
)

const (
	minimumConcurrencyConstant            = 1
	workerStartedMessageConstant          = "worker started"
	repositoryCompletedMessageConstant    = "repository completed"
	logFieldWorkerIndexConstant           = "worker_index"
	logFieldRepositoryConstant            = "repository"
	logFieldSucceededOperationsConstant   = "succeeded"
	logFieldSkippedOperationsConstant     = "skipped"
	logFieldFailedOperationsConstant      = "failed"
	schedulerRunStartedMessageConstant    = "run started"
	logFieldRepositoryCountConstant       = "repository_count"
	logFieldConcurrencyConstant           = "concurrency"
	logFieldRequestedOperationsFieldConst = "operations"
)

// RunRequest describes one scheduling run across the whole fleet.
type RunRequest struct {
	Repositories []manifest.RepoSpec
	Operations   []OperationKind
	Concurrency  int
	Policy       SyncPolicy
}

// Scheduler launches one operation runner per repository through a bounded
// worker pool, so a large manifest cannot exhaust file descriptors or network
// connections, and one repository's slowness never blocks another.
type Scheduler struct {
	repositoryService RepositoryService
	logger            *zap.Logger
}

// NewScheduler constructs a Scheduler after validating its dependencies.
func NewScheduler(repositoryService RepositoryService, logger *zap.Logger) (*Scheduler, error) {
	if repositoryService == nil {
		return nil, ErrRepositoryServiceNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{repositoryService: repositoryService, logger: logger}, nil
}

// RunAll executes the requested operations against every repository and
// returns only after each repository has reached a terminal outcome for every
// requested operation. Events flow to the supplied sink as they happen; each
// event is tagged with its originating repository.
func (scheduler *Scheduler) RunAll(executionContext context.Context, request RunRequest, eventSink EventSink) (AggregateResult, error) {
	if eventSink == nil {
		return AggregateResult{}, ErrEventSinkNotConfigured
	}

	workerCount := request.Concurrency
	if workerCount < minimumConcurrencyConstant {
		workerCount = minimumConcurrencyConstant
	}
	if workerCount > len(request.Repositories) {
		workerCount = len(request.Repositories)
	}

	scheduler.logger.Debug(
		schedulerRunStartedMessageConstant,
		zap.Int(logFieldRepositoryCountConstant, len(request.Repositories)),
		zap.Int(logFieldConcurrencyConstant, workerCount),
		zap.Any(logFieldRequestedOperationsFieldConst, request.Operations),
	)

	collectingSink := &collectingEventSink{delegate: eventSink}
	repositoryQueue := make(chan manifest.RepoSpec)

	var workerGroup sync.WaitGroup
	for workerIndex := 0; workerIndex < workerCount; workerIndex++ {
		workerGroup.Add(1)
		go func(workerIndex int) {
			defer workerGroup.Done()
			scheduler.logger.Debug(workerStartedMessageConstant, zap.Int(logFieldWorkerIndexConstant, workerIndex))

			for repositorySpecification := range repositoryQueue {
				operationRunner, runnerError := NewOperationRunner(scheduler.repositoryService, request.Policy, collectingSink)
				if runnerError != nil {
					continue
				}
				repositorySummary := operationRunner.Run(executionContext, repositorySpecification, request.Operations)
				scheduler.logger.Debug(
					repositoryCompletedMessageConstant,
					zap.String(logFieldRepositoryConstant, repositorySpecification.Path),
					zap.Int(logFieldSucceededOperationsConstant, repositorySummary.Succeeded),
					zap.Int(logFieldSkippedOperationsConstant, repositorySummary.Skipped),
					zap.Int(logFieldFailedOperationsConstant, repositorySummary.Failed),
				)
			}
		}(workerIndex)
	}

	for _, repositorySpecification := range request.Repositories {
		repositoryQueue <- repositorySpecification
	}
	close(repositoryQueue)
	workerGroup.Wait()

	return AggregateResult{Outcomes: collectingSink.collectedOutcomes()}, nil
}

// collectingEventSink records every outcome event while forwarding all events
// to the delegate sink. It is safe for concurrent publishers.
type collectingEventSink struct {
	delegate EventSink
	mutex    sync.Mutex
	outcomes []OperationOutcome
}

func (sink *collectingEventSink) Publish(event ProgressEvent) {
	if event.Type == ProgressEventOutcome && event.Outcome != nil {
		sink.mutex.Lock()
		sink.outcomes = append(sink.outcomes, *event.Outcome)
		sink.mutex.Unlock()
	}
	if sink.delegate != nil {
		sink.delegate.Publish(event)
	}
}

func (sink *collectingEventSink) collectedOutcomes() []OperationOutcome {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	return append([]OperationOutcome{}, sink.outcomes...)
}

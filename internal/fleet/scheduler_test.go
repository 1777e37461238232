package fleet_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/repoteer/repoteer/internal/fleet"
	"github.com/repoteer/repoteer/internal/manifest"
)

// concurrencyTrackingRepositoryService counts how many repositories are being
// processed simultaneously and remembers the observed maximum.
type concurrencyTrackingRepositoryService struct {
	mutex             sync.Mutex
	activeCount       int
	maximumActive     int
	operationDuration time.Duration
}

func (service *concurrencyTrackingRepositoryService) enter() {
	service.mutex.Lock()
	service.activeCount++
	if service.activeCount > service.maximumActive {
		service.maximumActive = service.activeCount
	}
	service.mutex.Unlock()
}

func (service *concurrencyTrackingRepositoryService) leave() {
	service.mutex.Lock()
	service.activeCount--
	service.mutex.Unlock()
}

func (service *concurrencyTrackingRepositoryService) Probe(_ context.Context, _ manifest.RepoSpec) (fleet.RepositoryState, error) {
	service.enter()
	defer service.leave()
	time.Sleep(service.operationDuration)
	return fleet.RepositoryState{Presence: fleet.RepositoryPresent, Worktree: fleet.WorktreeClean, CurrentBranch: "main"}, nil
}

func (service *concurrencyTrackingRepositoryService) Clone(_ context.Context, _ manifest.RepoSpec) error {
	return nil
}

func (service *concurrencyTrackingRepositoryService) Pull(_ context.Context, _ manifest.RepoSpec) error {
	service.enter()
	defer service.leave()
	time.Sleep(service.operationDuration)
	return nil
}

func (service *concurrencyTrackingRepositoryService) Push(_ context.Context, _ manifest.RepoSpec, _ bool) error {
	return nil
}

// discardingEventSink drops every event.
type discardingEventSink struct{}

func (discardingEventSink) Publish(fleet.ProgressEvent) {}

func fleetOfRepositories(repositoryCount int) []manifest.RepoSpec {
	repositories := make([]manifest.RepoSpec, 0, repositoryCount)
	for repositoryIndex := 0; repositoryIndex < repositoryCount; repositoryIndex++ {
		repositories = append(repositories, manifest.RepoSpec{
			URL:  fmt.Sprintf("https://example.com/repository-%d.git", repositoryIndex),
			Path: fmt.Sprintf("/workspace/repository-%d", repositoryIndex),
		})
	}
	return repositories
}

func TestNewSchedulerValidatesRepositoryService(testInstance *testing.T) {
	scheduler, constructionError := fleet.NewScheduler(nil, zap.NewNop())
	require.Nil(testInstance, scheduler)
	require.ErrorIs(testInstance, constructionError, fleet.ErrRepositoryServiceNotConfigured)
}

func TestRunAllRequiresEventSink(testInstance *testing.T) {
	scheduler, constructionError := fleet.NewScheduler(&concurrencyTrackingRepositoryService{}, zap.NewNop())
	require.NoError(testInstance, constructionError)

	_, runError := scheduler.RunAll(context.Background(), fleet.RunRequest{}, nil)
	require.ErrorIs(testInstance, runError, fleet.ErrEventSinkNotConfigured)
}

func TestRunAllHonorsConcurrencyBound(testInstance *testing.T) {
	repositoryService := &concurrencyTrackingRepositoryService{operationDuration: 20 * time.Millisecond}
	scheduler, constructionError := fleet.NewScheduler(repositoryService, zap.NewNop())
	require.NoError(testInstance, constructionError)

	repositories := fleetOfRepositories(5)
	runStart := time.Now()
	aggregateResult, runError := scheduler.RunAll(context.Background(), fleet.RunRequest{
		Repositories: repositories,
		Operations:   []fleet.OperationKind{fleet.OperationPull},
		Concurrency:  2,
	}, discardingEventSink{})
	elapsedDuration := time.Since(runStart)
	require.NoError(testInstance, runError)

	require.LessOrEqual(testInstance, repositoryService.maximumActive, 2)
	require.Len(testInstance, aggregateResult.Outcomes, len(repositories))

	// Five repositories at two workers need at least three waves of the pull
	// delay (probe adds more, so only the lower bound is safe to assert).
	require.GreaterOrEqual(testInstance, elapsedDuration, 3*repositoryService.operationDuration)
}

func TestRunAllProcessesRepositoriesInParallel(testInstance *testing.T) {
	repositoryService := &concurrencyTrackingRepositoryService{operationDuration: 20 * time.Millisecond}
	scheduler, constructionError := fleet.NewScheduler(repositoryService, zap.NewNop())
	require.NoError(testInstance, constructionError)

	_, runError := scheduler.RunAll(context.Background(), fleet.RunRequest{
		Repositories: fleetOfRepositories(4),
		Operations:   []fleet.OperationKind{fleet.OperationPull},
		Concurrency:  4,
	}, discardingEventSink{})
	require.NoError(testInstance, runError)

	require.Greater(testInstance, repositoryService.maximumActive, 1)
}

func TestRunAllIsolatesFailuresBetweenRepositories(testInstance *testing.T) {
	repositoryService := &scriptedRepositoryService{
		pullErrors: map[string]error{"/workspace/beta": errors.New("authentication failed")},
	}
	scheduler, constructionError := fleet.NewScheduler(repositoryService, zap.NewNop())
	require.NoError(testInstance, constructionError)

	repositories := []manifest.RepoSpec{
		{URL: "https://example.com/alpha.git", Path: "/workspace/alpha"},
		{URL: "https://example.com/beta.git", Path: "/workspace/beta"},
		{URL: "https://example.com/gamma.git", Path: "/workspace/gamma"},
	}
	aggregateResult, runError := scheduler.RunAll(context.Background(), fleet.RunRequest{
		Repositories: repositories,
		Operations:   []fleet.OperationKind{fleet.OperationPull, fleet.OperationPush},
		Concurrency:  3,
	}, discardingEventSink{})
	require.NoError(testInstance, runError)

	require.Len(testInstance, aggregateResult.Outcomes, len(repositories)*2)
	require.True(testInstance, aggregateResult.HasFailures())

	runSummary := aggregateResult.Summary()
	require.Equal(testInstance, fleet.RunSummary{Succeeded: 5, Failed: 1}, runSummary)

	failures := aggregateResult.Failures()
	require.Len(testInstance, failures, 1)
	require.Equal(testInstance, "/workspace/beta", failures[0].RepositoryPath)
	require.Equal(testInstance, fleet.OperationPull, failures[0].Operation)
	require.Equal(testInstance, "authentication failed", failures[0].Reason)
}

func TestRunAllCompletesWithZeroRepositories(testInstance *testing.T) {
	scheduler, constructionError := fleet.NewScheduler(&concurrencyTrackingRepositoryService{}, zap.NewNop())
	require.NoError(testInstance, constructionError)

	aggregateResult, runError := scheduler.RunAll(context.Background(), fleet.RunRequest{
		Operations:  []fleet.OperationKind{fleet.OperationPull},
		Concurrency: 4,
	}, discardingEventSink{})
	require.NoError(testInstance, runError)
	require.Empty(testInstance, aggregateResult.Outcomes)
	require.False(testInstance, aggregateResult.HasFailures())
}

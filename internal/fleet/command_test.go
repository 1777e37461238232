package fleet_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/repoteer/repoteer/internal/fleet"
	"github.com/repoteer/repoteer/internal/manifest"
)

func buildFleetCommand(testInstance *testing.T, builder *fleet.CommandBuilder, commandName string) *cobra.Command {
	builtCommands, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	for _, builtCommand := range builtCommands {
		if builtCommand.Name() == commandName {
			builtCommand.SetContext(context.Background())
			// Standalone execution must not pick up the test binary's arguments.
			builtCommand.SetArgs([]string{})
			return builtCommand
		}
	}

	testInstance.Fatalf("command %q not built", commandName)
	return nil
}

func manifestLoaderReturning(repositories []manifest.RepoSpec) func(string) ([]manifest.RepoSpec, error) {
	return func(string) ([]manifest.RepoSpec, error) {
		return repositories, nil
	}
}

func plainConfigurationProvider() fleet.CommandConfiguration {
	configuration := fleet.DefaultCommandConfiguration()
	configuration.Color = false
	return configuration
}

func TestBuildProducesAllSubcommands(testInstance *testing.T) {
	builder := &fleet.CommandBuilder{}
	builtCommands, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	commandNames := []string{}
	for _, builtCommand := range builtCommands {
		commandNames = append(commandNames, builtCommand.Name())
	}
	require.Equal(testInstance, []string{"sync", "pull", "push", "status", "clone"}, commandNames)
}

func TestSyncCommandClonesMissingRepository(testInstance *testing.T) {
	repositoryService := &scriptedRepositoryService{
		probeStates: []fleet.RepositoryState{
			{Presence: fleet.RepositoryAbsent},
			{Presence: fleet.RepositoryPresent, Worktree: fleet.WorktreeClean, CurrentBranch: "main"},
		},
	}
	builder := &fleet.CommandBuilder{
		LoggerProvider:        zap.NewNop,
		ConfigurationProvider: plainConfigurationProvider,
		RepositoryService:     repositoryService,
		ManifestLoader: manifestLoaderReturning([]manifest.RepoSpec{
			{URL: "https://example.com/alpha.git", Path: "/workspace/alpha"},
		}),
		Version: "1.2.3",
	}

	syncCommand := buildFleetCommand(testInstance, builder, "sync")
	outputBuffer := &bytes.Buffer{}
	syncCommand.SetOut(outputBuffer)
	syncCommand.SetErr(outputBuffer)

	executionError := syncCommand.Execute()
	require.NoError(testInstance, executionError)

	require.Equal(testInstance, []string{"/workspace/alpha"}, repositoryService.cloneCalls)
	require.Equal(testInstance, []string{"/workspace/alpha"}, repositoryService.pullCalls)
	require.Equal(testInstance, []string{"/workspace/alpha"}, repositoryService.pushCalls)

	renderedOutput := outputBuffer.String()
	require.Contains(testInstance, renderedOutput, "repoteer 1.2.3 - running sync across 1 repositories")
	require.Contains(testInstance, renderedOutput, "clone succeeded")
	require.Contains(testInstance, renderedOutput, "3 succeeded, 0 skipped, 0 failed")
}

func TestSyncCommandIsIdempotentForPresentRepository(testInstance *testing.T) {
	repositoryService := &scriptedRepositoryService{
		probeStates: []fleet.RepositoryState{
			{Presence: fleet.RepositoryPresent, Worktree: fleet.WorktreeClean, CurrentBranch: "main"},
		},
	}
	builder := &fleet.CommandBuilder{
		ConfigurationProvider: plainConfigurationProvider,
		RepositoryService:     repositoryService,
		ManifestLoader: manifestLoaderReturning([]manifest.RepoSpec{
			{URL: "https://example.com/alpha.git", Path: "/workspace/alpha"},
		}),
	}

	syncCommand := buildFleetCommand(testInstance, builder, "sync")
	outputBuffer := &bytes.Buffer{}
	syncCommand.SetOut(outputBuffer)
	syncCommand.SetErr(outputBuffer)

	executionError := syncCommand.Execute()
	require.NoError(testInstance, executionError)

	require.Empty(testInstance, repositoryService.cloneCalls)
	require.Contains(testInstance, outputBuffer.String(), "clone skipped (already present)")
	require.Contains(testInstance, outputBuffer.String(), "2 succeeded, 1 skipped, 0 failed")
}

func TestCommandReturnsErrorWhenOperationsFail(testInstance *testing.T) {
	repositoryService := &scriptedRepositoryService{
		pullError: errors.New("authentication failed"),
	}
	builder := &fleet.CommandBuilder{
		ConfigurationProvider: plainConfigurationProvider,
		RepositoryService:     repositoryService,
		ManifestLoader: manifestLoaderReturning([]manifest.RepoSpec{
			{URL: "https://example.com/alpha.git", Path: "/workspace/alpha"},
		}),
	}

	pullCommand := buildFleetCommand(testInstance, builder, "pull")
	outputBuffer := &bytes.Buffer{}
	pullCommand.SetOut(outputBuffer)
	pullCommand.SetErr(outputBuffer)

	executionError := pullCommand.Execute()
	require.EqualError(testInstance, executionError, "run completed with 1 failed operation(s)")
	require.Contains(testInstance, outputBuffer.String(), "pull failed: authentication failed")
	require.Contains(testInstance, outputBuffer.String(), "Failed operations:")
}

func TestStatusCommandReportsStateWithoutMutating(testInstance *testing.T) {
	repositoryService := &scriptedRepositoryService{
		probeStates: []fleet.RepositoryState{
			{Presence: fleet.RepositoryPresent, Worktree: fleet.WorktreeClean, CurrentBranch: "main"},
		},
	}
	builder := &fleet.CommandBuilder{
		ConfigurationProvider: plainConfigurationProvider,
		RepositoryService:     repositoryService,
		ManifestLoader: manifestLoaderReturning([]manifest.RepoSpec{
			{URL: "https://example.com/alpha.git", Path: "/workspace/alpha"},
		}),
	}

	statusCommand := buildFleetCommand(testInstance, builder, "status")
	outputBuffer := &bytes.Buffer{}
	statusCommand.SetOut(outputBuffer)
	statusCommand.SetErr(outputBuffer)

	executionError := statusCommand.Execute()
	require.NoError(testInstance, executionError)

	require.Empty(testInstance, repositoryService.cloneCalls)
	require.Empty(testInstance, repositoryService.pullCalls)
	require.Empty(testInstance, repositoryService.pushCalls)
	require.Contains(testInstance, outputBuffer.String(), "clean, up to date")
}

func TestCommandFlagsOverrideConfiguration(testInstance *testing.T) {
	repositoryService := &scriptedRepositoryService{
		probeStates: []fleet.RepositoryState{
			{Presence: fleet.RepositoryPresent, Worktree: fleet.WorktreeUncommittedChanges, CurrentBranch: "main"},
		},
	}
	builder := &fleet.CommandBuilder{
		ConfigurationProvider: plainConfigurationProvider,
		RepositoryService:     repositoryService,
		ManifestLoader: manifestLoaderReturning([]manifest.RepoSpec{
			{URL: "https://example.com/alpha.git", Path: "/workspace/alpha"},
		}),
	}

	pushCommand := buildFleetCommand(testInstance, builder, "push")
	outputBuffer := &bytes.Buffer{}
	pushCommand.SetOut(outputBuffer)
	pushCommand.SetErr(outputBuffer)
	pushCommand.SetArgs([]string{"--force-push"})

	executionError := pushCommand.Execute()
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, []string{"/workspace/alpha"}, repositoryService.pushCalls)
	require.Contains(testInstance, outputBuffer.String(), "push succeeded")
}

func TestCommandPropagatesManifestErrors(testInstance *testing.T) {
	manifestError := errors.New("manifest not found")
	builder := &fleet.CommandBuilder{
		ConfigurationProvider: plainConfigurationProvider,
		RepositoryService:     &scriptedRepositoryService{},
		ManifestLoader: func(string) ([]manifest.RepoSpec, error) {
			return nil, manifestError
		},
	}

	syncCommand := buildFleetCommand(testInstance, builder, "sync")
	outputBuffer := &bytes.Buffer{}
	syncCommand.SetOut(outputBuffer)
	syncCommand.SetErr(outputBuffer)

	executionError := syncCommand.Execute()
	require.ErrorIs(testInstance, executionError, manifestError)
}

package fleet_test

import (
	"context"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/repoteer/repoteer/internal/execshell"
	"github.com/repoteer/repoteer/internal/fleet"
	"github.com/repoteer/repoteer/internal/manifest"
)

// stubGitExecutor records every git invocation and answers each subcommand
// with a scripted result.
type stubGitExecutor struct {
	executedCommands []execshell.CommandDetails
	resultsByCommand map[string]execshell.ExecutionResult
	errorsByCommand  map[string]error
}

func (executor *stubGitExecutor) ExecuteGit(_ context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	executor.executedCommands = append(executor.executedCommands, details)

	if len(details.Arguments) == 0 {
		return execshell.ExecutionResult{}, nil
	}
	subcommand := details.Arguments[0]
	if commandError, errorKnown := executor.errorsByCommand[subcommand]; errorKnown {
		return execshell.ExecutionResult{}, commandError
	}
	return executor.resultsByCommand[subcommand], nil
}

type presentFileSystem struct{}

func (presentFileSystem) Stat(string) (fs.FileInfo, error) { return nil, nil }

type absentFileSystem struct{}

func (absentFileSystem) Stat(string) (fs.FileInfo, error) { return nil, fs.ErrNotExist }

func TestNewGitServiceRequiresExecutor(testInstance *testing.T) {
	gitService, constructionError := fleet.NewGitService(nil, nil, 0)
	require.Nil(testInstance, gitService)
	require.ErrorIs(testInstance, constructionError, fleet.ErrGitExecutorNotConfigured)
}

func TestProbeReportsAbsentRepositoryWithoutInvokingGit(testInstance *testing.T) {
	gitExecutor := &stubGitExecutor{}
	gitService, constructionError := fleet.NewGitService(gitExecutor, absentFileSystem{}, time.Minute)
	require.NoError(testInstance, constructionError)

	observedState, probeError := gitService.Probe(context.Background(), manifest.RepoSpec{URL: "https://example.com/alpha.git", Path: "/workspace/alpha"})
	require.NoError(testInstance, probeError)
	require.Equal(testInstance, fleet.RepositoryAbsent, observedState.Presence)
	require.Empty(testInstance, gitExecutor.executedCommands)
}

func TestProbeParsesObservedState(testInstance *testing.T) {
	testCases := []struct {
		name                     string
		statusOutput             string
		currentBranchOutput      string
		forEachRefOutput         string
		expectedWorktree         fleet.WorktreeStatus
		expectedCurrentBranch    string
		expectedBranchDivergence map[string]fleet.DivergenceStatus
	}{
		{
			name:                     "clean_repository_up_to_date",
			statusOutput:             "",
			currentBranchOutput:      "main\n",
			forEachRefOutput:         "main\t\n",
			expectedWorktree:         fleet.WorktreeClean,
			expectedCurrentBranch:    "main",
			expectedBranchDivergence: map[string]fleet.DivergenceStatus{"main": fleet.BranchUpToDate},
		},
		{
			name:                     "modified_file_marks_uncommitted_changes",
			statusOutput:             " M internal/service.go\n",
			currentBranchOutput:      "main\n",
			forEachRefOutput:         "main\t\n",
			expectedWorktree:         fleet.WorktreeUncommittedChanges,
			expectedCurrentBranch:    "main",
			expectedBranchDivergence: map[string]fleet.DivergenceStatus{"main": fleet.BranchUpToDate},
		},
		{
			name:                     "conflict_markers_mark_unmerged_worktree",
			statusOutput:             "UU internal/service.go\n M README.md\n",
			currentBranchOutput:      "main\n",
			forEachRefOutput:         "main\t\n",
			expectedWorktree:         fleet.WorktreeUnmerged,
			expectedCurrentBranch:    "main",
			expectedBranchDivergence: map[string]fleet.DivergenceStatus{"main": fleet.BranchUpToDate},
		},
		{
			name:                     "both_deleted_marks_unmerged_worktree",
			statusOutput:             "DD internal/service.go\n",
			currentBranchOutput:      "main\n",
			forEachRefOutput:         "main\t\n",
			expectedWorktree:         fleet.WorktreeUnmerged,
			expectedCurrentBranch:    "main",
			expectedBranchDivergence: map[string]fleet.DivergenceStatus{"main": fleet.BranchUpToDate},
		},
		{
			name:                  "tracking_annotations_classify_divergence",
			statusOutput:          "",
			currentBranchOutput:   "main\n",
			forEachRefOutput:      "main\t[ahead 2, behind 1]\nrelease\t[behind 3]\nfeature\t[ahead 1]\narchive\t[gone]\n",
			expectedWorktree:      fleet.WorktreeClean,
			expectedCurrentBranch: "main",
			expectedBranchDivergence: map[string]fleet.DivergenceStatus{
				"main":    fleet.BranchDiverged,
				"release": fleet.BranchBehind,
				"feature": fleet.BranchAhead,
				"archive": fleet.BranchUpToDate,
			},
		},
		{
			name:                     "detached_head_reports_empty_current_branch",
			statusOutput:             "",
			currentBranchOutput:      "HEAD\n",
			forEachRefOutput:         "main\t\n",
			expectedWorktree:         fleet.WorktreeClean,
			expectedCurrentBranch:    "",
			expectedBranchDivergence: map[string]fleet.DivergenceStatus{"main": fleet.BranchUpToDate},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			gitExecutor := &stubGitExecutor{
				resultsByCommand: map[string]execshell.ExecutionResult{
					"status":       {StandardOutput: testCase.statusOutput},
					"rev-parse":    {StandardOutput: testCase.currentBranchOutput},
					"for-each-ref": {StandardOutput: testCase.forEachRefOutput},
				},
			}
			gitService, constructionError := fleet.NewGitService(gitExecutor, presentFileSystem{}, time.Minute)
			require.NoError(testInstance, constructionError)

			observedState, probeError := gitService.Probe(context.Background(), manifest.RepoSpec{URL: "https://example.com/alpha.git", Path: "/workspace/alpha"})
			require.NoError(testInstance, probeError)
			require.Equal(testInstance, fleet.RepositoryPresent, observedState.Presence)
			require.Equal(testInstance, testCase.expectedWorktree, observedState.Worktree)
			require.Equal(testInstance, testCase.expectedCurrentBranch, observedState.CurrentBranch)
			require.Equal(testInstance, testCase.expectedBranchDivergence, observedState.BranchDivergence)
		})
	}
}

func TestCloneInvokesGitWithURLAndTargetPath(testInstance *testing.T) {
	gitExecutor := &stubGitExecutor{}
	gitService, constructionError := fleet.NewGitService(gitExecutor, presentFileSystem{}, time.Minute)
	require.NoError(testInstance, constructionError)

	cloneError := gitService.Clone(context.Background(), manifest.RepoSpec{URL: "https://example.com/alpha.git", Path: "/workspace/alpha"})
	require.NoError(testInstance, cloneError)

	require.Len(testInstance, gitExecutor.executedCommands, 1)
	require.Equal(testInstance, []string{"clone", "https://example.com/alpha.git", "/workspace/alpha"}, gitExecutor.executedCommands[0].Arguments)
	require.Empty(testInstance, gitExecutor.executedCommands[0].WorkingDirectory)
	require.Equal(testInstance, time.Minute, gitExecutor.executedCommands[0].Timeout)
}

func TestPullUsesFastForwardOnly(testInstance *testing.T) {
	gitExecutor := &stubGitExecutor{}
	gitService, constructionError := fleet.NewGitService(gitExecutor, presentFileSystem{}, time.Minute)
	require.NoError(testInstance, constructionError)

	pullError := gitService.Pull(context.Background(), manifest.RepoSpec{URL: "https://example.com/alpha.git", Path: "/workspace/alpha"})
	require.NoError(testInstance, pullError)

	require.Len(testInstance, gitExecutor.executedCommands, 1)
	require.Equal(testInstance, []string{"pull", "--ff-only"}, gitExecutor.executedCommands[0].Arguments)
	require.Equal(testInstance, "/workspace/alpha", gitExecutor.executedCommands[0].WorkingDirectory)
}

func TestPushArguments(testInstance *testing.T) {
	testCases := []struct {
		name              string
		specification     manifest.RepoSpec
		force             bool
		expectedArguments []string
	}{
		{
			name:              "default_push_without_filters",
			specification:     manifest.RepoSpec{URL: "https://example.com/alpha.git", Path: "/workspace/alpha"},
			expectedArguments: []string{"push"},
		},
		{
			name:              "forced_push",
			specification:     manifest.RepoSpec{URL: "https://example.com/alpha.git", Path: "/workspace/alpha"},
			force:             true,
			expectedArguments: []string{"push", "--force"},
		},
		{
			name: "branch_filters_push_included_branches_only",
			specification: manifest.RepoSpec{
				URL:              "https://example.com/alpha.git",
				Path:             "/workspace/alpha",
				IncludedBranches: []string{"main", "develop"},
				ExcludedBranches: []string{"develop"},
			},
			expectedArguments: []string{"push", "origin", "main"},
		},
		{
			name: "exclusion_only_filters_never_name_refspecs",
			specification: manifest.RepoSpec{
				URL:              "https://example.com/alpha.git",
				Path:             "/workspace/alpha",
				ExcludedBranches: []string{"experimental"},
			},
			expectedArguments: []string{"push"},
		},
		{
			name: "fully_excluded_include_list_never_names_refspecs",
			specification: manifest.RepoSpec{
				URL:              "https://example.com/alpha.git",
				Path:             "/workspace/alpha",
				IncludedBranches: []string{"develop"},
				ExcludedBranches: []string{"develop"},
			},
			expectedArguments: []string{"push"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			gitExecutor := &stubGitExecutor{}
			gitService, constructionError := fleet.NewGitService(gitExecutor, presentFileSystem{}, time.Minute)
			require.NoError(testInstance, constructionError)

			pushError := gitService.Push(context.Background(), testCase.specification, testCase.force)
			require.NoError(testInstance, pushError)

			require.Len(testInstance, gitExecutor.executedCommands, 1)
			require.Equal(testInstance, testCase.expectedArguments, gitExecutor.executedCommands[0].Arguments)
		})
	}
}

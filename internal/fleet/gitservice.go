package fleet

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/repoteer/repoteer/internal/execshell"
	"github.com/repoteer/repoteer/internal/manifest"
)

const (
	gitExecutorMissingMessageConstant      = "git executor must be provided"
	gitRevParseSubcommandConstant          = "rev-parse"
	gitInsideWorkTreeFlagConstant          = "--is-inside-work-tree"
	gitAbbreviatedReferenceFlagConstant    = "--abbrev-ref"
	gitHeadReferenceConstant               = "HEAD"
	gitStatusSubcommandConstant            = "status"
	gitStatusPorcelainFlagConstant         = "--porcelain"
	gitForEachRefSubcommandConstant        = "for-each-ref"
	gitForEachRefFormatFlagConstant        = "--format=%(refname:short)\t%(upstream:track)"
	gitLocalBranchesReferencePrefixant     = "refs/heads"
	gitCloneSubcommandConstant             = "clone"
	gitPullSubcommandConstant              = "pull"
	gitFastForwardOnlyFlagConstant         = "--ff-only"
	gitPushSubcommandConstant              = "push"
	gitForceFlagConstant                   = "--force"
	gitOriginRemoteNameConstant            = "origin"
	gitDetachedHeadReferenceConstant       = "HEAD"
	unmergedStatusCodeCharacterConstant    = 'U'
	porcelainStatusFieldWidthConstant      = 2
	aheadTrackingTokenConstant             = "ahead"
	behindTrackingTokenConstant            = "behind"
	trackingAnnotationOpeningRuneConstant  = "["
	trackingAnnotationClosingRuneConstant  = "]"
	trackingAnnotationSeparatorConstant    = ","
	branchStateGoneTrackingTokenConstant   = "gone"
	repositoryProbeFieldSeparatorConstant  = "\t"
	defaultOperationTimeoutDurationMinutes = 5
)

// ErrGitExecutorNotConfigured indicates the git executor dependency was missing.
var ErrGitExecutorNotConfigured = errors.New(gitExecutorMissingMessageConstant)

// GitExecutor exposes the subset of shell execution used by the git service.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// FileSystem exposes the filesystem operations required for presence probing.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
}

// OSFileSystem implements FileSystem using the operating system primitives.
type OSFileSystem struct{}

// Stat retrieves file metadata.
func (OSFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// RepositoryService is the boundary to the external version control tool.
// Probe observes without mutating; Clone, Pull, and Push delegate the only
// state mutation in the system to the external tool.
type RepositoryService interface {
	Probe(executionContext context.Context, specification manifest.RepoSpec) (RepositoryState, error)
	Clone(executionContext context.Context, specification manifest.RepoSpec) error
	Pull(executionContext context.Context, specification manifest.RepoSpec) error
	Push(executionContext context.Context, specification manifest.RepoSpec, force bool) error
}

// GitService implements RepositoryService by shelling out to git.
type GitService struct {
	executor         GitExecutor
	fileSystem       FileSystem
	operationTimeout time.Duration
}

// NewGitService constructs a GitService with the supplied executor and
// per-operation timeout. A zero timeout selects the default of five minutes.
func NewGitService(executor GitExecutor, fileSystem FileSystem, operationTimeout time.Duration) (*GitService, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if fileSystem == nil {
		fileSystem = OSFileSystem{}
	}
	if operationTimeout <= 0 {
		operationTimeout = defaultOperationTimeoutDurationMinutes * time.Minute
	}
	return &GitService{executor: executor, fileSystem: fileSystem, operationTimeout: operationTimeout}, nil
}

// Probe computes the transient observed state of the repository working copy.
func (service *GitService) Probe(executionContext context.Context, specification manifest.RepoSpec) (RepositoryState, error) {
	if _, statError := service.fileSystem.Stat(specification.Path); statError != nil {
		if errors.Is(statError, fs.ErrNotExist) {
			return RepositoryState{Presence: RepositoryAbsent}, nil
		}
		return RepositoryState{}, statError
	}

	if _, workTreeError := service.execute(executionContext, specification.Path, gitRevParseSubcommandConstant, gitInsideWorkTreeFlagConstant); workTreeError != nil {
		return RepositoryState{}, workTreeError
	}

	statusResult, statusError := service.execute(executionContext, specification.Path, gitStatusSubcommandConstant, gitStatusPorcelainFlagConstant)
	if statusError != nil {
		return RepositoryState{}, statusError
	}

	branchResult, branchError := service.execute(executionContext, specification.Path, gitRevParseSubcommandConstant, gitAbbreviatedReferenceFlagConstant, gitHeadReferenceConstant)
	if branchError != nil {
		return RepositoryState{}, branchError
	}

	trackingResult, trackingError := service.execute(executionContext, specification.Path, gitForEachRefSubcommandConstant, gitForEachRefFormatFlagConstant, gitLocalBranchesReferencePrefixant)
	if trackingError != nil {
		return RepositoryState{}, trackingError
	}

	currentBranch := strings.TrimSpace(branchResult.StandardOutput)
	if currentBranch == gitDetachedHeadReferenceConstant {
		currentBranch = ""
	}

	return RepositoryState{
		Presence:         RepositoryPresent,
		Worktree:         parseWorktreeStatus(statusResult.StandardOutput),
		CurrentBranch:    currentBranch,
		BranchDivergence: parseBranchDivergence(trackingResult.StandardOutput),
	}, nil
}

// Clone materializes the repository at its configured path.
func (service *GitService) Clone(executionContext context.Context, specification manifest.RepoSpec) error {
	_, cloneError := service.execute(executionContext, "", gitCloneSubcommandConstant, specification.URL, specification.Path)
	return cloneError
}

// Pull fast-forwards the current branch from its upstream.
func (service *GitService) Pull(executionContext context.Context, specification manifest.RepoSpec) error {
	_, pullError := service.execute(executionContext, specification.Path, gitPullSubcommandConstant, gitFastForwardOnlyFlagConstant)
	return pullError
}

// Push publishes local commits to the origin remote. When the repository
// declares included branches, only those surviving the exclusion set are
// pushed as explicit refspecs; otherwise git's configured push behavior
// applies (the policy evaluator has already denied pushes from an excluded
// current branch).
func (service *GitService) Push(executionContext context.Context, specification manifest.RepoSpec, force bool) error {
	pushArguments := []string{gitPushSubcommandConstant}
	if force {
		pushArguments = append(pushArguments, gitForceFlagConstant)
	}

	includedRefspecs := []string{}
	for _, includedBranch := range specification.IncludedBranches {
		if specification.BranchIncluded(includedBranch) {
			includedRefspecs = append(includedRefspecs, includedBranch)
		}
	}
	if len(includedRefspecs) > 0 {
		pushArguments = append(pushArguments, gitOriginRemoteNameConstant)
		pushArguments = append(pushArguments, includedRefspecs...)
	}

	_, pushError := service.execute(executionContext, specification.Path, pushArguments...)
	return pushError
}

func (service *GitService) execute(executionContext context.Context, workingDirectory string, arguments ...string) (execshell.ExecutionResult, error) {
	return service.executor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: workingDirectory,
		Timeout:          service.operationTimeout,
	})
}

// parseWorktreeStatus interprets `git status --porcelain` output. Unmerged
// entries carry a U (or a DD/AA pair) in their two-character status field.
func parseWorktreeStatus(porcelainOutput string) WorktreeStatus {
	trimmedOutput := strings.TrimSpace(porcelainOutput)
	if len(trimmedOutput) == 0 {
		return WorktreeClean
	}

	for _, statusLine := range strings.Split(trimmedOutput, "\n") {
		if len(statusLine) < porcelainStatusFieldWidthConstant {
			continue
		}
		statusField := statusLine[:porcelainStatusFieldWidthConstant]
		if strings.ContainsRune(statusField, unmergedStatusCodeCharacterConstant) || statusField == "DD" || statusField == "AA" {
			return WorktreeUnmerged
		}
	}

	return WorktreeUncommittedChanges
}

// parseBranchDivergence interprets `git for-each-ref` output of the form
// "branch\t[ahead 1, behind 2]" into per-branch divergence statuses.
func parseBranchDivergence(forEachRefOutput string) map[string]DivergenceStatus {
	divergenceByBranch := map[string]DivergenceStatus{}

	for _, referenceLine := range strings.Split(strings.TrimSpace(forEachRefOutput), "\n") {
		trimmedLine := strings.TrimSpace(referenceLine)
		if len(trimmedLine) == 0 {
			continue
		}

		branchName, trackingAnnotation, _ := strings.Cut(trimmedLine, repositoryProbeFieldSeparatorConstant)
		branchName = strings.TrimSpace(branchName)
		if len(branchName) == 0 {
			continue
		}

		divergenceByBranch[branchName] = parseTrackingAnnotation(trackingAnnotation)
	}

	return divergenceByBranch
}

func parseTrackingAnnotation(trackingAnnotation string) DivergenceStatus {
	trimmedAnnotation := strings.TrimSpace(trackingAnnotation)
	trimmedAnnotation = strings.TrimPrefix(trimmedAnnotation, trackingAnnotationOpeningRuneConstant)
	trimmedAnnotation = strings.TrimSuffix(trimmedAnnotation, trackingAnnotationClosingRuneConstant)
	if len(trimmedAnnotation) == 0 || trimmedAnnotation == branchStateGoneTrackingTokenConstant {
		return BranchUpToDate
	}

	branchIsAhead := false
	branchIsBehind := false
	for _, trackingToken := range strings.Split(trimmedAnnotation, trackingAnnotationSeparatorConstant) {
		trimmedToken := strings.TrimSpace(trackingToken)
		if strings.HasPrefix(trimmedToken, aheadTrackingTokenConstant) {
			branchIsAhead = true
		}
		if strings.HasPrefix(trimmedToken, behindTrackingTokenConstant) {
			branchIsBehind = true
		}
	}

	switch {
	case branchIsAhead && branchIsBehind:
		return BranchDiverged
	case branchIsAhead:
		return BranchAhead
	case branchIsBehind:
		return BranchBehind
	default:
		return BranchUpToDate
	}
}

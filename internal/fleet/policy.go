package fleet

import (
	"fmt"

	"github.com/repoteer/repoteer/internal/manifest"
)

const (
	alreadyPresentReasonConstant         = "already present"
	repositoryNotPresentReasonConstant   = "repository not present"
	prerequisiteFailedReasonConstant     = "prerequisite failed"
	unmergedWorktreeReasonConstant       = "unmerged files in working tree"
	uncommittedChangesReasonConstant     = "uncommitted changes in working tree"
	currentBranchExcludedReasonConstant  = "current branch excluded by branch filters"
	divergedBranchReasonTemplateConstant = "branch %s diverged from its upstream"
)

// SyncPolicy is the global configuration governing which operations are
// permitted under which observed repository state. It is loaded once per run
// and shared read-only by every policy evaluation.
type SyncPolicy struct {
	// AllowUnmergedPull permits pulling while the working tree has unmerged files.
	AllowUnmergedPull bool
	// AllowDivergedPull permits pulling while an included branch has diverged.
	AllowDivergedPull bool
	// ForcePush permits pushing despite uncommitted changes or divergence.
	ForcePush bool
}

// OperationDecision is the verdict for one requested operation.
type OperationDecision struct {
	Operation OperationKind
	Allowed   bool
	// Reason explains a denial; empty when the operation is allowed.
	Reason string
}

// PolicyEvaluator decides which operations a repository's observed state
// permits. It is a pure function of its inputs: no side effects, no I/O.
type PolicyEvaluator struct{}

// EvaluateOperations produces one decision per requested operation, in
// request order. Decisions assume earlier allowed operations succeed; the
// runner re-evaluates against fresh state after a successful clone and
// downgrades later operations when a prerequisite actually fails.
func (evaluator PolicyEvaluator) EvaluateOperations(
	specification manifest.RepoSpec,
	state RepositoryState,
	requestedOperations []OperationKind,
	policy SyncPolicy,
) []OperationDecision {
	decisions := make([]OperationDecision, 0, len(requestedOperations))
	clonePending := false

	for _, requestedOperation := range requestedOperations {
		switch requestedOperation {
		case OperationClone:
			decision := evaluator.decideClone(state)
			clonePending = decision.Allowed
			decisions = append(decisions, decision)
		case OperationPull:
			decisions = append(decisions, evaluator.decidePull(specification, state, policy, clonePending))
		case OperationPush:
			decisions = append(decisions, evaluator.decidePush(specification, state, policy, clonePending))
		case OperationStatus:
			decisions = append(decisions, OperationDecision{Operation: OperationStatus, Allowed: true})
		}
	}

	return decisions
}

func (evaluator PolicyEvaluator) decideClone(state RepositoryState) OperationDecision {
	if state.Presence == RepositoryAbsent {
		return OperationDecision{Operation: OperationClone, Allowed: true}
	}
	return OperationDecision{Operation: OperationClone, Allowed: false, Reason: alreadyPresentReasonConstant}
}

func (evaluator PolicyEvaluator) decidePull(
	specification manifest.RepoSpec,
	state RepositoryState,
	policy SyncPolicy,
	clonePending bool,
) OperationDecision {
	if state.Presence == RepositoryAbsent {
		if clonePending {
			// The pending clone satisfies the presence precondition; the runner
			// re-evaluates against post-clone state before pulling.
			return OperationDecision{Operation: OperationPull, Allowed: true}
		}
		return OperationDecision{Operation: OperationPull, Allowed: false, Reason: repositoryNotPresentReasonConstant}
	}

	if state.Worktree == WorktreeUnmerged && !policy.AllowUnmergedPull {
		return OperationDecision{Operation: OperationPull, Allowed: false, Reason: unmergedWorktreeReasonConstant}
	}

	if len(state.CurrentBranch) > 0 && !specification.BranchIncluded(state.CurrentBranch) {
		return OperationDecision{Operation: OperationPull, Allowed: false, Reason: currentBranchExcludedReasonConstant}
	}

	if divergedBranch := state.FirstDivergedBranch(specification); len(divergedBranch) > 0 && !policy.AllowDivergedPull {
		return OperationDecision{
			Operation: OperationPull,
			Allowed:   false,
			Reason:    fmt.Sprintf(divergedBranchReasonTemplateConstant, divergedBranch),
		}
	}

	return OperationDecision{Operation: OperationPull, Allowed: true}
}

func (evaluator PolicyEvaluator) decidePush(
	specification manifest.RepoSpec,
	state RepositoryState,
	policy SyncPolicy,
	clonePending bool,
) OperationDecision {
	if state.Presence == RepositoryAbsent {
		if clonePending {
			return OperationDecision{Operation: OperationPush, Allowed: true}
		}
		return OperationDecision{Operation: OperationPush, Allowed: false, Reason: repositoryNotPresentReasonConstant}
	}

	// Branch filters scope which branches are managed at all; force push
	// overrides safety checks, never the filter scope.
	if len(state.CurrentBranch) > 0 && !specification.BranchIncluded(state.CurrentBranch) {
		return OperationDecision{Operation: OperationPush, Allowed: false, Reason: currentBranchExcludedReasonConstant}
	}

	if policy.ForcePush {
		return OperationDecision{Operation: OperationPush, Allowed: true}
	}

	switch state.Worktree {
	case WorktreeUncommittedChanges:
		return OperationDecision{Operation: OperationPush, Allowed: false, Reason: uncommittedChangesReasonConstant}
	case WorktreeUnmerged:
		return OperationDecision{Operation: OperationPush, Allowed: false, Reason: unmergedWorktreeReasonConstant}
	}

	if divergedBranch := state.FirstDivergedBranch(specification); len(divergedBranch) > 0 {
		return OperationDecision{
			Operation: OperationPush,
			Allowed:   false,
			Reason:    fmt.Sprintf(divergedBranchReasonTemplateConstant, divergedBranch),
		}
	}

	return OperationDecision{Operation: OperationPush, Allowed: true}
}

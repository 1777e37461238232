package fleet

import (
	"sort"
	"strings"

	"github.com/repoteer/repoteer/internal/manifest"
)

// RepositoryPresence reports whether the working copy exists on disk.
type RepositoryPresence string

// Presence values.
const (
	RepositoryAbsent  RepositoryPresence = "absent"
	RepositoryPresent RepositoryPresence = "present"
)

// WorktreeStatus describes the cleanliness of a working tree.
type WorktreeStatus string

// Worktree statuses.
const (
	WorktreeClean              WorktreeStatus = "clean"
	WorktreeUncommittedChanges WorktreeStatus = "uncommitted_changes"
	WorktreeUnmerged           WorktreeStatus = "unmerged"
)

// DivergenceStatus describes how a local branch relates to its upstream.
type DivergenceStatus string

// Divergence statuses.
const (
	BranchUpToDate DivergenceStatus = "up_to_date"
	BranchAhead    DivergenceStatus = "ahead"
	BranchBehind   DivergenceStatus = "behind"
	BranchDiverged DivergenceStatus = "diverged"
)

// RepositoryState is the transient observed state of one working copy.
//
// It is computed fresh for every run by invoking the external git tool and is
// owned exclusively by the runner that probed it; it is never cached across
// runs.
type RepositoryState struct {
	Presence         RepositoryPresence
	Worktree         WorktreeStatus
	CurrentBranch    string
	BranchDivergence map[string]DivergenceStatus
}

// FirstDivergedBranch returns the name of an included branch whose history has
// diverged from its upstream, or an empty string when none has. Branches
// excluded by the repository's filters never influence the answer.
func (state RepositoryState) FirstDivergedBranch(specification manifest.RepoSpec) string {
	divergedBranch := ""
	for branchName, divergence := range state.BranchDivergence {
		if divergence != BranchDiverged {
			continue
		}
		if !specification.BranchIncluded(branchName) {
			continue
		}
		if len(divergedBranch) == 0 || branchName < divergedBranch {
			divergedBranch = branchName
		}
	}
	return divergedBranch
}

// Describe renders a short human-readable description of the observed state.
func (state RepositoryState) Describe() string {
	if state.Presence == RepositoryAbsent {
		return "not cloned"
	}

	descriptionParts := []string{}
	switch state.Worktree {
	case WorktreeClean:
		descriptionParts = append(descriptionParts, "clean")
	case WorktreeUncommittedChanges:
		descriptionParts = append(descriptionParts, "uncommitted changes")
	case WorktreeUnmerged:
		descriptionParts = append(descriptionParts, "unmerged files")
	}

	divergedBranches := []string{}
	behindBranches := []string{}
	aheadBranches := []string{}
	for branchName, divergence := range state.BranchDivergence {
		switch divergence {
		case BranchDiverged:
			divergedBranches = append(divergedBranches, branchName)
		case BranchBehind:
			behindBranches = append(behindBranches, branchName)
		case BranchAhead:
			aheadBranches = append(aheadBranches, branchName)
		}
	}
	if len(divergedBranches) > 0 {
		descriptionParts = append(descriptionParts, "diverged: "+joinSortedBranchNames(divergedBranches))
	}
	if len(behindBranches) > 0 {
		descriptionParts = append(descriptionParts, "behind: "+joinSortedBranchNames(behindBranches))
	}
	if len(aheadBranches) > 0 {
		descriptionParts = append(descriptionParts, "ahead: "+joinSortedBranchNames(aheadBranches))
	}
	if len(descriptionParts) == 1 && state.Worktree == WorktreeClean {
		return "clean, up to date"
	}

	return strings.Join(descriptionParts, "; ")
}

func joinSortedBranchNames(branchNames []string) string {
	sortedNames := append([]string{}, branchNames...)
	sort.Strings(sortedNames)
	return strings.Join(sortedNames, ", ")
}

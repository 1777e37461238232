package manifest

import (
	"fmt"
	"strings"
)

const (
	gitServiceNameConstant                  = "git"
	repoURLMissingTemplateConstant          = "repository %d: url must be provided"
	repoPathMissingTemplateConstant         = "repository %d: path must be provided"
	repoPathNotAbsoluteTemplateConstant     = "repository %d: path %q must be absolute"
	repoServiceUnsupportedTemplateConstant  = "repository %d: unsupported service %q"
	duplicateRepositoryPathTemplateConstant = "repository %d: path %q already declared"
)

// RepoSpec identifies one managed repository.
//
// The structure is immutable once loaded; everything downstream of the
// dispatcher treats it as read-only.
type RepoSpec struct {
	URL              string   `mapstructure:"url" yaml:"url"`
	Path             string   `mapstructure:"path" yaml:"path"`
	Service          string   `mapstructure:"service" yaml:"service"`
	IncludedBranches []string `mapstructure:"included_branches" yaml:"included_branches"`
	ExcludedBranches []string `mapstructure:"excluded_branches" yaml:"excluded_branches"`
}

// Name returns the short display identity of the repository, derived from its path.
func (specification RepoSpec) Name() string {
	trimmedPath := strings.TrimRight(specification.Path, "/")
	lastSeparatorIndex := strings.LastIndex(trimmedPath, "/")
	if lastSeparatorIndex < 0 || lastSeparatorIndex == len(trimmedPath)-1 {
		return trimmedPath
	}
	return trimmedPath[lastSeparatorIndex+1:]
}

// BranchIncluded reports whether the supplied branch participates in pull and
// push operations for this repository. The default include set is all
// branches; exclusions win over inclusions.
func (specification RepoSpec) BranchIncluded(branchName string) bool {
	for _, excludedBranch := range specification.ExcludedBranches {
		if excludedBranch == branchName {
			return false
		}
	}
	if len(specification.IncludedBranches) == 0 {
		return true
	}
	for _, includedBranch := range specification.IncludedBranches {
		if includedBranch == branchName {
			return true
		}
	}
	return false
}

// Manifest is the record of repositories managed by repoteer.
type Manifest struct {
	Repos []RepoSpec `mapstructure:"repos" yaml:"repos"`
}

func validateRepositories(repositories []RepoSpec) error {
	if len(repositories) == 0 {
		return ErrNoRepositories
	}

	declaredPaths := map[string]struct{}{}
	for repositoryIndex, repository := range repositories {
		if len(strings.TrimSpace(repository.URL)) == 0 {
			return fmt.Errorf(repoURLMissingTemplateConstant, repositoryIndex)
		}
		if len(strings.TrimSpace(repository.Path)) == 0 {
			return fmt.Errorf(repoPathMissingTemplateConstant, repositoryIndex)
		}
		if !strings.HasPrefix(repository.Path, "/") {
			return fmt.Errorf(repoPathNotAbsoluteTemplateConstant, repositoryIndex, repository.Path)
		}
		if len(repository.Service) > 0 && !strings.EqualFold(repository.Service, gitServiceNameConstant) {
			return fmt.Errorf(repoServiceUnsupportedTemplateConstant, repositoryIndex, repository.Service)
		}
		if _, alreadyDeclared := declaredPaths[repository.Path]; alreadyDeclared {
			return fmt.Errorf(duplicateRepositoryPathTemplateConstant, repositoryIndex, repository.Path)
		}
		declaredPaths[repository.Path] = struct{}{}
	}

	return nil
}

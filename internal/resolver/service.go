package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-github/v75/github"
	"go.uber.org/zap"
)

const (
	// StableCommitLookback caps how many recent commits are inspected per
	// stable branch when building the commit window.
	StableCommitLookback = 20

	stableBranchPrefixConstant             = "stable/"
	branchPageSizeConstant                 = 100
	listerMissingMessageConstant           = "repository lister not configured"
	loggerMissingMessageConstant           = "logger not configured"
	ownerRequiredMessageConstant           = "repository owner must be provided"
	repositoryNameRequiredMessageConstant  = "repository name must be provided"
	branchListingErrorTemplateConstant     = "unable to list branches for %s/%s: %w"
	commitListingErrorTemplateConstant     = "unable to list commits for %s/%s branch %s: %w"
	stableBranchFoundMessageConstant       = "found stable branch"
	windowBuiltMessageConstant             = "built stable commit window"
	logFieldOwnerConstant                  = "owner"
	logFieldRepositoryConstant             = "repository"
	logFieldBranchConstant                 = "branch"
	logFieldCommitCountConstant            = "commit_count"
)

// ErrRepositoryListerNotConfigured indicates the lister dependency was missing.
var ErrRepositoryListerNotConfigured = errors.New(listerMissingMessageConstant)

// ErrLoggerNotConfigured indicates the logger dependency was missing.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrOwnerRequired indicates a resolve call received an empty owner.
var ErrOwnerRequired = errors.New(ownerRequiredMessageConstant)

// ErrRepositoryNameRequired indicates a resolve call received an empty repository name.
var ErrRepositoryNameRequired = errors.New(repositoryNameRequiredMessageConstant)

// RepositoryLister is the slice of the GitHub API the resolver consumes.
// *github.RepositoriesService satisfies it directly.
type RepositoryLister interface {
	ListBranches(executionContext context.Context, owner string, repositoryName string, options *github.BranchListOptions) ([]*github.Branch, *github.Response, error)
	ListCommits(executionContext context.Context, owner string, repositoryName string, options *github.CommitsListOptions) ([]*github.RepositoryCommit, *github.Response, error)
}

// Dependencies enumerates the collaborators required by the resolver.
type Dependencies struct {
	RepositoryLister RepositoryLister
	Logger           *zap.Logger
}

// Service builds commit windows over a repository's stable branches.
type Service struct {
	repositoryLister RepositoryLister
	logger           *zap.Logger
}

// NewService constructs a Service from the provided dependencies.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.RepositoryLister == nil {
		return nil, ErrRepositoryListerNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &Service{repositoryLister: dependencies.RepositoryLister, logger: dependencies.Logger}, nil
}

// Resolve enumerates the repository's stable branches and records up to
// StableCommitLookback most recent commits per branch into a commit window.
// Failures propagate unwrapped in meaning: this component has no retry story
// and callers terminate the run on error.
func (service *Service) Resolve(executionContext context.Context, owner string, repositoryName string) (*CommitWindow, error) {
	if len(strings.TrimSpace(owner)) == 0 {
		return nil, ErrOwnerRequired
	}
	if len(strings.TrimSpace(repositoryName)) == 0 {
		return nil, ErrRepositoryNameRequired
	}

	stableBranchNames, branchError := service.listStableBranches(executionContext, owner, repositoryName)
	if branchError != nil {
		return nil, branchError
	}

	commitWindow := NewCommitWindow()
	for _, branchName := range stableBranchNames {
		service.logger.Debug(
			stableBranchFoundMessageConstant,
			zap.String(logFieldOwnerConstant, owner),
			zap.String(logFieldRepositoryConstant, repositoryName),
			zap.String(logFieldBranchConstant, branchName),
		)

		commitListOptions := &github.CommitsListOptions{
			SHA:         branchName,
			ListOptions: github.ListOptions{PerPage: StableCommitLookback},
		}
		recentCommits, _, commitError := service.repositoryLister.ListCommits(executionContext, owner, repositoryName, commitListOptions)
		if commitError != nil {
			return nil, fmt.Errorf(commitListingErrorTemplateConstant, owner, repositoryName, branchName, commitError)
		}

		for commitIndex, recentCommit := range recentCommits {
			if commitIndex == StableCommitLookback {
				break
			}
			commitWindow.Record(recentCommit.GetSHA(), branchName)
		}
	}

	service.logger.Debug(
		windowBuiltMessageConstant,
		zap.String(logFieldOwnerConstant, owner),
		zap.String(logFieldRepositoryConstant, repositoryName),
		zap.Int(logFieldCommitCountConstant, commitWindow.Len()),
	)

	return commitWindow, nil
}

func (service *Service) listStableBranches(executionContext context.Context, owner string, repositoryName string) ([]string, error) {
	branchListOptions := &github.BranchListOptions{
		ListOptions: github.ListOptions{PerPage: branchPageSizeConstant},
	}

	var stableBranchNames []string
	for {
		branchPage, pageResponse, listError := service.repositoryLister.ListBranches(executionContext, owner, repositoryName, branchListOptions)
		if listError != nil {
			return nil, fmt.Errorf(branchListingErrorTemplateConstant, owner, repositoryName, listError)
		}

		for _, branchDescriptor := range branchPage {
			branchName := branchDescriptor.GetName()
			if strings.HasPrefix(branchName, stableBranchPrefixConstant) && len(branchName) > len(stableBranchPrefixConstant) {
				stableBranchNames = append(stableBranchNames, branchName)
			}
		}

		if pageResponse == nil || pageResponse.NextPage == 0 {
			break
		}
		branchListOptions.Page = pageResponse.NextPage
	}

	return stableBranchNames, nil
}

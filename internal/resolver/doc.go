// Package resolver maps recent commits on a repository's stable release
// branches to the branch they belong to. It consumes the GitHub API through
// go-github, optionally authenticated from ambient environment credentials,
// and keeps a bounded lookback window of commits per branch.
package resolver

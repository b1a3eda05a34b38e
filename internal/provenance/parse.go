// Package provenance extracts source-control provenance from the repo-info
// file embedded in published charm archives.
package provenance

import (
	"regexp"
	"strings"
)

var (
	commitIdentifierPattern = regexp.MustCompile(`commit-sha-1: ([\da-f]+)`)
	remoteRepositoryPattern = regexp.MustCompile(`remote: https://github\.com/(.+)/(.+)`)
)

// Record is the structured provenance extracted from repo-info text.
type Record struct {
	SHA      string
	Owner    string
	RepoName string
}

// HasRepository reports whether both owner and repository name were found.
func (record Record) HasRepository() bool {
	return len(record.Owner) > 0 && len(record.RepoName) > 0
}

// Parse scans free-form repo-info text for a commit identifier and a GitHub
// remote. The commit identifier is mandatory: without it the text carries no
// usable provenance and the second return value is false. A remote without a
// commit identifier is ignored so an owner is never recorded for an unknown
// build.
func Parse(repoInfoText string) (Record, bool) {
	commitMatch := commitIdentifierPattern.FindStringSubmatch(repoInfoText)
	if commitMatch == nil {
		return Record{}, false
	}

	record := Record{SHA: commitMatch[1]}

	remoteMatch := remoteRepositoryPattern.FindStringSubmatch(repoInfoText)
	if remoteMatch != nil {
		record.Owner = remoteMatch[1]
		record.RepoName = strings.TrimSuffix(remoteMatch[2], ".git")
	}

	return record, true
}

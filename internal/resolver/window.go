package resolver

// CommitWindow is an insertion-ordered mapping from commit identifier to the
// stable branch the commit was first observed on. When a commit appears on
// several stable branches the first recording wins, which makes the
// tie-break follow branch enumeration order rather than a racy last-write.
type CommitWindow struct {
	branchNamesByCommit map[string]string
	commitOrder         []string
}

// NewCommitWindow constructs an empty window.
func NewCommitWindow() *CommitWindow {
	return &CommitWindow{branchNamesByCommit: map[string]string{}}
}

// Record associates the commit with the branch unless the commit was already
// recorded for an earlier branch.
func (window *CommitWindow) Record(commitSHA string, branchName string) {
	if _, alreadyRecorded := window.branchNamesByCommit[commitSHA]; alreadyRecorded {
		return
	}
	window.branchNamesByCommit[commitSHA] = branchName
	window.commitOrder = append(window.commitOrder, commitSHA)
}

// BranchFor returns the branch recorded for the commit, if any.
func (window *CommitWindow) BranchFor(commitSHA string) (string, bool) {
	branchName, recorded := window.branchNamesByCommit[commitSHA]
	return branchName, recorded
}

// Commits returns the recorded commit identifiers in insertion order.
func (window *CommitWindow) Commits() []string {
	orderedCommits := make([]string, len(window.commitOrder))
	copy(orderedCommits, window.commitOrder)
	return orderedCommits
}

// Len reports how many distinct commits the window holds.
func (window *CommitWindow) Len() int {
	return len(window.commitOrder)
}

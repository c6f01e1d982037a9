package strategy

import (
	"fmt"

	"github.com/hochfrequenz/pretested-integration/internal/domain"
)

// Squash collapses the candidate's history into one new commit on the
// integration branch.
type Squash struct{}

func (Squash) Name() string { return TagSquash }

// Integrate runs merge --squash followed by a single commit
func (Squash) Integrate(t Target, c domain.Commit) domain.StrategyResult {
	candidate := candidateOf(t, c)
	if stop := ensureCandidate(t, candidate); stop != nil {
		return *stop
	}

	t.Logf("[strategy] squashing %s (%s) into %s", candidate, c.Short(), t.Branch())

	code, out, err := t.Git("merge", "--squash", c.ID)
	if err != nil {
		return domain.Failed(err.Error())
	}
	if code != 0 {
		t.Logf("[strategy] merge --squash exited %d", code)
		return domain.Failed(fmt.Sprintf("merge --squash exited %d:\n%s", code, out))
	}

	// diff --cached --quiet exits 0 when the squash staged nothing
	code, _, err = t.Git("diff", "--cached", "--quiet")
	if err != nil {
		return domain.Failed(err.Error())
	}
	if code == 0 {
		t.Logf("[strategy] %s introduces no changes, no commit created", candidate)
		return domain.Integrated()
	}

	code, out, err = t.Git("commit", "--no-verify", "-m", Message(candidate))
	if err != nil {
		return domain.Failed(err.Error())
	}
	if code != 0 {
		t.Logf("[strategy] commit exited %d", code)
		return domain.Failed(fmt.Sprintf("commit exited %d:\n%s", code, out))
	}
	return domain.Integrated()
}

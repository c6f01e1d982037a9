package strategy

import (
	"fmt"

	"github.com/hochfrequenz/pretested-integration/internal/domain"
)

// Accumulated keeps the candidate's full history behind a non-fast-forward
// merge commit.
type Accumulated struct{}

func (Accumulated) Name() string { return TagAccumulated }

func (Accumulated) Integrate(t Target, c domain.Commit) domain.StrategyResult {
	candidate := candidateOf(t, c)
	if stop := ensureCandidate(t, candidate); stop != nil {
		return *stop
	}

	t.Logf("[strategy] merging %s (%s) into %s", candidate, c.Short(), t.Branch())

	code, out, err := t.Git("merge", "--no-ff", "--no-edit", "-m", Message(candidate), c.ID)
	if err != nil {
		return domain.Failed(err.Error())
	}
	if code != 0 {
		t.Logf("[strategy] merge exited %d", code)
		return domain.Failed(fmt.Sprintf("merge exited %d:\n%s", code, out))
	}
	return domain.Integrated()
}

// Package strategy implements the merge policies used to bring a candidate
// commit onto the integration branch.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hochfrequenz/pretested-integration/internal/domain"
)

// Target is the capability set a strategy needs from the bridge. Git runs
// in the bridge's workspace, positioned on the integration branch.
type Target interface {
	Git(args ...string) (int, string, error)
	Branch() string
	CandidateBranch() string
	RemoteBranchExists(name string) (bool, error)
	Logf(format string, args ...any)
}

// Strategy merges one candidate commit into the integration branch.
// Implementations must check that the candidate still exists before
// mutating anything.
type Strategy interface {
	Name() string
	Integrate(t Target, c domain.Commit) domain.StrategyResult
}

// Factory constructs a Strategy
type Factory func() Strategy

// Tags understood by New
const (
	TagSquash      = "squash"
	TagAccumulated = "accumulated"
)

// ErrUnknownStrategy is returned by New for unregistered tags
var ErrUnknownStrategy = errors.New("unknown integration strategy")

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		TagSquash:      func() Strategy { return Squash{} },
		TagAccumulated: func() Strategy { return Accumulated{} },
	}
)

// Register adds or replaces a strategy constructor for tag
func Register(tag string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normalize(tag)] = f
}

// New returns the strategy registered for tag
func New(tag string) (Strategy, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	f, ok := registry[normalize(tag)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownStrategy, tag, strings.Join(tagsLocked(), ", "))
	}
	return f(), nil
}

// Tags returns the registered tags in sorted order
func Tags() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return tagsLocked()
}

func tagsLocked() []string {
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func normalize(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// Message is the commit message used for integration commits
func Message(candidate string) string {
	return fmt.Sprintf("Integrated %s", candidate)
}

// candidateOf prefers the branch recorded on the commit at discovery time
func candidateOf(t Target, c domain.Commit) string {
	if b := c.Get(domain.MetaBranch); b != "" {
		return b
	}
	return t.CandidateBranch()
}

// ensureCandidate returns a non-nil result when integration must stop
// before any merge is attempted.
func ensureCandidate(t Target, candidate string) *domain.StrategyResult {
	if candidate == "" {
		r := domain.NothingToDo("no candidate branch")
		return &r
	}
	exists, err := t.RemoteBranchExists(candidate)
	if err != nil {
		r := domain.Failed(err.Error())
		return &r
	}
	if !exists {
		t.Logf("[strategy] branch %s no longer exists, nothing to do", candidate)
		r := domain.NothingToDo(fmt.Sprintf("branch %s no longer exists", candidate))
		return &r
	}
	return nil
}

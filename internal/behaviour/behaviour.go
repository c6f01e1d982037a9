// Package behaviour implements actions that run after the external build
// has produced a result.
package behaviour

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hochfrequenz/pretested-integration/internal/domain"
)

// Bridge is what behaviours act on
type Bridge interface {
	RequiredResult() domain.Result
	Rollback() error
	DeleteIntegratedBranch(result domain.Result) error
}

// Behaviour is applied once per run with the final build result
type Behaviour interface {
	Name() string
	Apply(result domain.Result, b Bridge) error
}

// Tags understood by New
const (
	TagRollbackOnFailure      = "rollback-on-failure"
	TagDeleteIntegratedBranch = "delete-integrated-branch"
)

// ErrUnknownBehaviour is returned by New for unregistered tags
var ErrUnknownBehaviour = errors.New("unknown post-build behaviour")

var registry = map[string]func() Behaviour{
	TagRollbackOnFailure:      func() Behaviour { return RollbackOnFailure{} },
	TagDeleteIntegratedBranch: func() Behaviour { return DeleteIntegratedBranch{} },
}

// New returns the behaviour registered for tag
func New(tag string) (Behaviour, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		known := make([]string, 0, len(registry))
		for k := range registry {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownBehaviour, tag, strings.Join(known, ", "))
	}
	return f(), nil
}

// NewAll resolves a list of tags, preserving order
func NewAll(tags []string) ([]Behaviour, error) {
	out := make([]Behaviour, 0, len(tags))
	for _, tag := range tags {
		b, err := New(tag)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Contains reports whether any behaviour in list has the given tag
func Contains(list []Behaviour, tag string) bool {
	for _, b := range list {
		if b.Name() == tag {
			return true
		}
	}
	return false
}

// RollbackOnFailure resets the integration branch when the build result
// is worse than the required threshold.
type RollbackOnFailure struct{}

func (RollbackOnFailure) Name() string { return TagRollbackOnFailure }

func (RollbackOnFailure) Apply(result domain.Result, b Bridge) error {
	if !result.IsWorseThan(b.RequiredResult()) {
		return nil
	}
	if err := b.Rollback(); err != nil {
		return fmt.Errorf("%s: %w", TagRollbackOnFailure, err)
	}
	return nil
}

// DeleteIntegratedBranch removes the candidate branch upstream once the
// build met the threshold.
type DeleteIntegratedBranch struct{}

func (DeleteIntegratedBranch) Name() string { return TagDeleteIntegratedBranch }

func (DeleteIntegratedBranch) Apply(result domain.Result, b Bridge) error {
	if !result.IsBetterOrEqualTo(b.RequiredResult()) {
		return nil
	}
	if err := b.DeleteIntegratedBranch(result); err != nil {
		return fmt.Errorf("%s: %w", TagDeleteIntegratedBranch, err)
	}
	return nil
}

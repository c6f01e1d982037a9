package bridge

import (
	"errors"
	"fmt"
	"strings"
)

// Failure kinds. Every error returned by GitBridge wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	ErrWorkspace         = errors.New("workspace establishment failed")
	ErrDiscovery         = errors.New("candidate discovery failed")
	ErrIntegrationFailed = errors.New("integration failed")
	ErrCommitPublish     = errors.New("publishing integrated changes failed")
	ErrRollback          = errors.New("rollback failed")
	ErrDeleteBranch      = errors.New("deleting integrated branch failed")
	ErrConfig            = errors.New("invalid bridge configuration")
)

// ErrNoIntegrationTip is wrapped together with ErrRollback when rollback
// is requested before any tip was captured.
var ErrNoIntegrationTip = errors.New("integration tip could not be determined")

// GitError describes a git invocation that exited non-zero
type GitError struct {
	Args     []string
	ExitCode int
	Output   string
}

func (e *GitError) Error() string {
	msg := fmt.Sprintf("git %s exited %d", strings.Join(e.Args, " "), e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ":\n" + out
	}
	return msg
}

func kindError(kind error, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}

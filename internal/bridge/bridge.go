// Package bridge drives a git working copy through one pretested
// integration run: positioning on the integration branch, finding the
// candidate commit, delegating the merge to a strategy, and publishing or
// rolling back afterwards.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/hochfrequenz/pretested-integration/internal/behaviour"
	"github.com/hochfrequenz/pretested-integration/internal/domain"
	"github.com/hochfrequenz/pretested-integration/internal/strategy"
	"github.com/hochfrequenz/pretested-integration/internal/vcs"
)

// Defaults applied to blank configuration values
const (
	DefaultBranch = "master"
	DefaultRemote = "origin"
)

// Config is fixed for the lifetime of a bridge
type Config struct {
	Branch         string
	Remote         string
	Strategy       strategy.Strategy
	Behaviours     []behaviour.Behaviour
	RequiredResult domain.Result
	// ForceReresolve makes the first NextCommit resolve its base from the
	// upstream integration branch instead of the previous commit.
	ForceReresolve bool
}

// Workspace is the exclusively owned working copy for one run and the
// trigger that started it
type Workspace struct {
	Dir     string
	Trigger domain.Trigger
}

var (
	_ strategy.Target  = (*GitBridge)(nil)
	_ behaviour.Bridge = (*GitBridge)(nil)
)

// GitBridge implements the integration workflow against a git working copy.
// It is not safe for concurrent use; the host runs one bridge per workspace.
type GitBridge struct {
	cfg    Config
	client vcs.Client
	ws     Workspace
	logger *log.Logger

	candidate string
	tip       domain.IntegrationTip
	reresolve bool
}

// New creates a bridge for one run
func New(cfg Config, client vcs.Client, ws Workspace, logger *log.Logger) *GitBridge {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &GitBridge{
		cfg:       cfg,
		client:    client,
		ws:        ws,
		logger:    logger,
		reresolve: cfg.ForceReresolve,
	}
}

// Branch returns the integration branch, defaulting to "master"
func (b *GitBridge) Branch() string {
	if strings.TrimSpace(b.cfg.Branch) == "" {
		return DefaultBranch
	}
	return strings.TrimSpace(b.cfg.Branch)
}

// Remote returns the upstream remote, defaulting to "origin"
func (b *GitBridge) Remote() string {
	if strings.TrimSpace(b.cfg.Remote) == "" {
		return DefaultRemote
	}
	return strings.TrimSpace(b.cfg.Remote)
}

// RequiredResult is the minimum build result for success behaviours
func (b *GitBridge) RequiredResult() domain.Result {
	return b.cfg.RequiredResult
}

// StrategyName returns the configured strategy's tag, or "" if none
func (b *GitBridge) StrategyName() string {
	if b.cfg.Strategy == nil {
		return ""
	}
	return b.cfg.Strategy.Name()
}

// Behaviours returns the configured post-build behaviours
func (b *GitBridge) Behaviours() []behaviour.Behaviour {
	return b.cfg.Behaviours
}

// CandidateBranch returns the remote-tracking name of the candidate
// branch, e.g. "origin/feature". Before NextCommit resolved it, the
// trigger's branch is qualified with the remote.
func (b *GitBridge) CandidateBranch() string {
	if b.candidate != "" {
		return b.candidate
	}
	return b.qualify(b.ws.Trigger.Branch)
}

// Tip returns the captured integration tip
func (b *GitBridge) Tip() domain.IntegrationTip {
	return b.tip
}

// ForceReresolve makes the next NextCommit resolve its base upstream
func (b *GitBridge) ForceReresolve() {
	b.reresolve = true
}

// Logf writes to the bridge's logger
func (b *GitBridge) Logf(format string, args ...any) {
	b.logger.Printf(format, args...)
}

// Git runs a git command in the workspace and returns exit code and output
func (b *GitBridge) Git(args ...string) (int, string, error) {
	return b.client.Run(b.ws.Dir, args...)
}

// git runs a command and turns a non-zero exit into a *GitError
func (b *GitBridge) git(args ...string) (string, error) {
	code, out, err := b.client.Run(b.ws.Dir, args...)
	if err != nil {
		return out, err
	}
	if code != 0 {
		return out, &GitError{Args: args, ExitCode: code, Output: out}
	}
	return out, nil
}

// DetermineIntegrationHead scans local and remote-tracking branches for the
// integration branch and returns its head. The remote-tracking ref wins over
// the local one. Returns nil if no such branch exists.
func (b *GitBridge) DetermineIntegrationHead() (*domain.Commit, error) {
	out, err := b.git("for-each-ref", "--format=%(refname) %(objectname)", "refs/heads", "refs/remotes")
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}

	branch := b.Branch()
	remoteName := "refs/remotes/" + b.Remote() + "/" + branch
	localName := "refs/heads/" + branch

	var local, remote string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		switch fields[0] {
		case remoteName:
			remote = fields[1]
		case localName:
			local = fields[1]
		}
	}

	head := remote
	if head == "" {
		head = local
	}
	if head == "" {
		b.logger.Printf("[bridge] integration branch %s not found", branch)
		return nil, nil
	}
	return domain.NewCommit(head, map[string]string{domain.MetaBranch: branch}), nil
}

// EnsureWorkspace checks out the integration branch and pulls its latest
// upstream state. Any failure is fatal to the run.
func (b *GitBridge) EnsureWorkspace() error {
	branch := b.Branch()
	b.logger.Printf("[bridge] positioning workspace on %s", branch)

	if _, err := b.git("checkout", branch); err != nil {
		return kindError(ErrWorkspace, err)
	}
	if _, err := b.git("pull", "--ff-only", b.Remote(), branch); err != nil {
		return kindError(ErrWorkspace, err)
	}
	return nil
}

// NextCommit returns the candidate commit to integrate, or nil when the
// trigger names no existing candidate branch or the branch holds nothing
// beyond the base. The force-reresolve flag is cleared on return.
func (b *GitBridge) NextCommit(previous *domain.Commit) (*domain.Commit, error) {
	reresolve := b.reresolve
	defer func() { b.reresolve = false }()

	if _, err := b.git("fetch", "--prune", b.Remote()); err != nil {
		return nil, kindError(ErrDiscovery, err)
	}

	candidate := b.qualify(b.ws.Trigger.Branch)
	if candidate == "" {
		b.logger.Printf("[bridge] trigger names no candidate branch")
		return nil, nil
	}
	exists, err := b.RemoteBranchExists(candidate)
	if err != nil {
		return nil, kindError(ErrDiscovery, err)
	}
	if !exists {
		b.logger.Printf("[bridge] candidate branch %s not found upstream", candidate)
		return nil, nil
	}
	b.candidate = candidate

	meta := map[string]string{domain.MetaBranch: candidate}
	if rev := strings.TrimSpace(b.ws.Trigger.Revision); rev != "" {
		b.logger.Printf("[bridge] next commit is %s from %s", rev, candidate)
		return domain.NewCommit(rev, meta), nil
	}

	base := b.base(previous, reresolve)
	meta[domain.MetaBase] = base
	revSpec := candidate
	if base != "" {
		revSpec = base + ".." + candidate
	}

	out, err := b.git("log", revSpec, "--format=%H")
	if err != nil {
		return nil, kindError(ErrDiscovery, err)
	}
	for _, line := range strings.Split(out, "\n") {
		if next := domain.NewCommit(line, meta); next != nil {
			b.logger.Printf("[bridge] next commit is %s from %s", next.ID, candidate)
			return next, nil
		}
	}
	b.logger.Printf("[bridge] %s has no commits beyond %s", candidate, base)
	return nil, nil
}

// base picks the revision candidate history is measured from
func (b *GitBridge) base(previous *domain.Commit, reresolve bool) string {
	if previous != nil && !reresolve {
		return previous.ID
	}
	code, out, err := b.client.Run(b.ws.Dir, "log", b.Remote()+"/"+b.Branch(), "-n", "1", "--format=%H")
	if err != nil || code != 0 {
		b.logger.Printf("[bridge] could not resolve upstream %s, using full history", b.Branch())
		return ""
	}
	rev := strings.TrimSpace(out)
	b.logger.Printf("[bridge] base revision is %s for branch %s", rev, b.Branch())
	return rev
}

// RemoteBranchExists asks the remote whether the branch still exists.
// name may be remote-qualified ("origin/feature") or bare ("feature").
func (b *GitBridge) RemoteBranchExists(name string) (bool, error) {
	ref := "refs/heads/" + b.unqualify(name)
	code, out, err := b.client.Run(b.ws.Dir, "ls-remote", "--exit-code", "--heads", b.Remote(), ref)
	if err != nil {
		return false, err
	}
	switch code {
	case 0:
		return true, nil
	case 2:
		// --exit-code: no matching refs
		return false, nil
	default:
		return false, &GitError{Args: []string{"ls-remote", "--exit-code", "--heads", b.Remote(), ref}, ExitCode: code, Output: out}
	}
}

// Integrate captures the integration tip and delegates the merge to the
// configured strategy. NothingToDo is reported with a nil error.
func (b *GitBridge) Integrate(c domain.Commit) (domain.StrategyResult, error) {
	if b.cfg.Strategy == nil {
		return domain.Failed("no strategy configured"), fmt.Errorf("%w: no integration strategy", ErrConfig)
	}

	out, err := b.git("rev-parse", "HEAD")
	if err != nil {
		return domain.Failed(err.Error()), kindError(ErrIntegrationFailed, err)
	}
	tip := domain.IntegrationTip(strings.TrimSpace(out))
	if tip.IsZero() {
		return domain.Failed(ErrNoIntegrationTip.Error()), kindError(ErrIntegrationFailed, ErrNoIntegrationTip)
	}
	b.tip = tip
	b.logger.Printf("[bridge] integration tip of %s is %s", b.Branch(), tip)

	res := b.cfg.Strategy.Integrate(b, c)
	switch res.Outcome {
	case domain.OutcomeIntegrated:
		b.logger.Printf("[bridge] integrated %s using %s", c.Short(), b.cfg.Strategy.Name())
		return res, nil
	case domain.OutcomeNothingToDo:
		b.logger.Printf("[bridge] nothing to do: %s", res.Reason)
		return res, nil
	default:
		b.logger.Printf("[bridge] integration of %s failed", c.Short())
		return res, fmt.Errorf("%w: %s", ErrIntegrationFailed, strings.TrimSpace(res.Reason))
	}
}

// Commit publishes the integrated branch upstream
func (b *GitBridge) Commit() error {
	b.logger.Printf("[bridge] pushing %s to %s", b.Branch(), b.Remote())
	if _, err := b.git("push", b.Remote(), b.Branch()); err != nil {
		return kindError(ErrCommitPublish, err)
	}
	return nil
}

// Rollback resets the integration branch to the captured tip. The tip is
// consumed: a second rollback fails with ErrNoIntegrationTip.
func (b *GitBridge) Rollback() error {
	if b.tip.IsZero() {
		return kindError(ErrRollback, ErrNoIntegrationTip)
	}
	b.logger.Printf("[bridge] rolling %s back to %s", b.Branch(), b.tip)
	if _, err := b.git("reset", "--hard", string(b.tip)); err != nil {
		return kindError(ErrRollback, err)
	}
	b.tip = ""
	return nil
}

// DeleteIntegratedBranch deletes the candidate branch upstream when result
// meets the required threshold; otherwise it does nothing.
func (b *GitBridge) DeleteIntegratedBranch(result domain.Result) error {
	if !result.IsBetterOrEqualTo(b.cfg.RequiredResult) {
		b.logger.Printf("[bridge] result %s below %s, keeping candidate branch", result, b.cfg.RequiredResult)
		return nil
	}
	name := b.unqualify(b.CandidateBranch())
	if name == "" {
		return kindError(ErrDeleteBranch, errors.New("no candidate branch known"))
	}
	b.logger.Printf("[bridge] deleting %s on %s", name, b.Remote())
	if _, err := b.git("push", b.Remote(), ":"+name); err != nil {
		return kindError(ErrDeleteBranch, err)
	}
	return nil
}

// ApplyBehaviours runs every configured behaviour in order. A failing
// behaviour does not stop the rest; all failures are returned joined.
func (b *GitBridge) ApplyBehaviours(result domain.Result) error {
	var errs []error
	for _, bh := range b.cfg.Behaviours {
		b.logger.Printf("[bridge] applying behaviour %s", bh.Name())
		if err := bh.Apply(result, b); err != nil {
			b.logger.Printf("[bridge] behaviour %s failed: %v", bh.Name(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// qualify turns "feature" into "origin/feature"
func (b *GitBridge) qualify(branch string) string {
	branch = strings.TrimSpace(branch)
	branch = strings.TrimPrefix(branch, "refs/remotes/")
	branch = strings.TrimPrefix(branch, "refs/heads/")
	if branch == "" || strings.HasPrefix(branch, b.Remote()+"/") {
		return branch
	}
	return b.Remote() + "/" + branch
}

// unqualify strips the remote-tracking prefix
func (b *GitBridge) unqualify(branch string) string {
	return strings.TrimPrefix(b.qualify(branch), b.Remote()+"/")
}

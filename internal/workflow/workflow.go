// Package workflow sequences one pretested integration run: workspace,
// discovery, integration, build, publish or rollback, behaviours.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/pretested-integration/internal/behaviour"
	"github.com/hochfrequenz/pretested-integration/internal/bridge"
	"github.com/hochfrequenz/pretested-integration/internal/buildrunner"
	"github.com/hochfrequenz/pretested-integration/internal/domain"
	"github.com/hochfrequenz/pretested-integration/internal/notify"
	"github.com/hochfrequenz/pretested-integration/internal/strategy"
	"github.com/hochfrequenz/pretested-integration/internal/vcs"
)

// Descriptions written to the run record
const (
	DescriptionNothingToDo   = "Nothing to do"
	DescriptionMergeConflict = "Merge conflict"
)

// Builder runs the build against the integrated workspace
type Builder interface {
	Run(ctx context.Context, dir string, onOutput buildrunner.OutputCallback) (*buildrunner.Report, error)
}

// History records runs. Every call is best-effort.
type History interface {
	InsertRun(run *domain.Run) error
	UpdateRun(run *domain.Run) error
	SetDescription(id, description string) error
	AppendLog(runID, level, message string) error
	LastIntegrated(branch, candidate string) (*domain.Commit, error)
}

// Config describes the workspace the runner owns
type Config struct {
	Bridge bridge.Config
	Dir    string
}

// Report is the outcome of one run
type Report struct {
	Run   *domain.Run
	Build *buildrunner.Report
}

// Skipped reports whether nothing was integrated and no build ran
func (r *Report) Skipped() bool {
	return r.Run.Status == domain.RunSkipped
}

// Runner executes integration runs one at a time
type Runner struct {
	cfg      Config
	client   vcs.Client
	builder  Builder
	history  History
	notifier notify.Notifier
	logger   *log.Logger
}

// New creates a Runner. history and notifier may be nil.
func New(cfg Config, client vcs.Client, builder Builder, history History, notifier notify.Notifier, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if history == nil {
		history = nopHistory{}
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Runner{
		cfg:      cfg,
		client:   client,
		builder:  builder,
		history:  history,
		notifier: notifier,
		logger:   logger,
	}
}

// Run performs one integration run for trigger. The returned report is
// never nil; the error is the first fatal failure or the joined
// behaviour failures.
func (r *Runner) Run(ctx context.Context, trigger domain.Trigger) (*Report, error) {
	b := bridge.New(r.cfg.Bridge, r.client, bridge.Workspace{Dir: r.cfg.Dir, Trigger: trigger}, r.logger)

	run := &domain.Run{
		ID:        uuid.NewString(),
		Branch:    b.Branch(),
		Candidate: b.CandidateBranch(),
		Strategy:  b.StrategyName(),
		Status:    domain.RunRunning,
		StartedAt: time.Now(),
	}
	r.bestEffort(r.history.InsertRun(run), "recording run %s", run.ID)
	r.logger.Printf("[workflow] run %s: %s into %s", run.ID, run.Candidate, run.Branch)

	rep := &Report{Run: run}
	err := r.run(ctx, b, rep)
	r.finish(rep, err)
	return rep, err
}

func (r *Runner) run(ctx context.Context, b *bridge.GitBridge, rep *Report) error {
	run := rep.Run

	if err := b.EnsureWorkspace(); err != nil {
		return r.fail(run, err)
	}

	previous, err := r.history.LastIntegrated(run.Branch, run.Candidate)
	r.bestEffort(err, "looking up last integration of %s", run.Candidate)

	next, err := b.NextCommit(previous)
	if err != nil {
		return r.fail(run, err)
	}
	if next == nil {
		return r.skip(run)
	}
	run.Candidate = b.CandidateBranch()
	run.Commit = next.ID

	res, err := b.Integrate(*next)
	run.Tip = string(b.Tip())
	if err != nil {
		failure := domain.ResultFailure
		run.Result = &failure
		if errors.Is(err, bridge.ErrIntegrationFailed) {
			r.describe(run, DescriptionMergeConflict)
		}
		if !b.Tip().IsZero() {
			if rbErr := b.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
		}
		return r.fail(run, err)
	}
	if res.Outcome == domain.OutcomeNothingToDo {
		return r.skip(run)
	}

	result := domain.ResultNotBuilt
	build, err := r.builder.Run(ctx, r.cfg.Dir, func(stream, line string) {
		r.history.AppendLog(run.ID, stream, line)
	})
	if err != nil {
		r.logger.Printf("[workflow] build not run: %v", err)
	} else {
		rep.Build = build
		result = build.Result
	}
	run.Result = &result
	r.logger.Printf("[workflow] build result %s, required %s", result, b.RequiredResult())

	if result.IsBetterOrEqualTo(b.RequiredResult()) {
		if err := b.Commit(); err != nil {
			r.describe(run, "Publishing failed")
			if rbErr := b.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
			return r.fail(run, err)
		}
		run.Status = domain.RunPublished
		r.describe(run, strategy.Message(run.Candidate))
	} else {
		if !behaviour.Contains(b.Behaviours(), behaviour.TagRollbackOnFailure) {
			if err := b.Rollback(); err != nil {
				return r.fail(run, err)
			}
		}
		run.Status = domain.RunRolledBack
		r.describe(run, fmt.Sprintf("Build %s, %s rolled back to %s", result, run.Branch, shortRev(run.Tip)))
	}

	if err := b.ApplyBehaviours(result); err != nil {
		if errors.Is(err, bridge.ErrRollback) {
			run.Status = domain.RunFailed
		}
		r.history.AppendLog(run.ID, "error", err.Error())
		return fmt.Errorf("post-build behaviours: %w", err)
	}
	return nil
}

func (r *Runner) skip(run *domain.Run) error {
	run.Status = domain.RunSkipped
	r.describe(run, DescriptionNothingToDo)
	return nil
}

func (r *Runner) fail(run *domain.Run, err error) error {
	run.Status = domain.RunFailed
	if run.Description == "" {
		r.describe(run, firstLine(err.Error()))
	}
	r.history.AppendLog(run.ID, "error", err.Error())
	return err
}

// describe updates the run description; failures are only logged
func (r *Runner) describe(run *domain.Run, text string) {
	run.Description = text
	r.bestEffort(r.history.SetDescription(run.ID, text), "describing run %s", run.ID)
}

func (r *Runner) finish(rep *Report, err error) {
	run := rep.Run
	now := time.Now()
	run.FinishedAt = &now
	r.bestEffort(r.history.UpdateRun(run), "updating run %s", run.ID)

	if err != nil {
		r.logger.Printf("[workflow] run %s %s: %v", run.ID, run.Status, err)
	} else {
		r.logger.Printf("[workflow] run %s %s in %s", run.ID, run.Status, run.Duration().Round(time.Millisecond))
	}

	if run.Status == domain.RunSkipped {
		return
	}
	r.bestEffort(r.notifier.Send(notify.ForRun(run)), "notifying run %s", run.ID)
}

func (r *Runner) bestEffort(err error, format string, args ...any) {
	if err != nil {
		r.logger.Printf("[workflow] %s: %v", fmt.Sprintf(format, args...), err)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func shortRev(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

type nopHistory struct{}

func (nopHistory) InsertRun(*domain.Run) error                           { return nil }
func (nopHistory) UpdateRun(*domain.Run) error                           { return nil }
func (nopHistory) SetDescription(string, string) error                   { return nil }
func (nopHistory) AppendLog(string, string, string) error                { return nil }
func (nopHistory) LastIntegrated(string, string) (*domain.Commit, error) { return nil, nil }

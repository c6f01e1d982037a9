// Package schedule polls for candidate branches on a cron schedule and
// integrates them one at a time.
package schedule

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hochfrequenz/pretested-integration/internal/domain"
	"github.com/hochfrequenz/pretested-integration/internal/workflow"
)

// Source lists candidate triggers
type Source interface {
	Candidates(pattern string, exclude ...string) ([]domain.Trigger, error)
}

// Runner integrates one trigger
type Runner interface {
	Run(ctx context.Context, trigger domain.Trigger) (*workflow.Report, error)
}

// Seen reports whether a candidate head was already attempted
type Seen interface {
	HasRun(branch, candidate, commit string) (bool, error)
}

// Poller runs the workflow for every new candidate head on each tick
type Poller struct {
	cfg    Config
	source Source
	runner Runner
	seen   Seen
	logger *log.Logger

	mu      sync.Mutex
	lastRun time.Time
}

// NewPoller creates a Poller; seen may be nil, in which case every
// candidate is run on every tick
func NewPoller(cfg Config, source Source, runner Runner, seen Seen, logger *log.Logger) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Poller{cfg: cfg, source: source, runner: runner, seen: seen, logger: logger}, nil
}

// NextRun returns the next scheduled poll after now
func (p *Poller) NextRun(now time.Time) time.Time {
	sched, err := ParseCron(p.cfg.Cron)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(now)
}

// LastRun returns when the last poll finished, zero if none has
func (p *Poller) LastRun() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRun
}

// Poll discovers candidates once and integrates the new ones in branch
// order. Run failures are logged and do not stop the remaining candidates.
func (p *Poller) Poll(ctx context.Context) ([]*workflow.Report, error) {
	defer func() {
		p.mu.Lock()
		p.lastRun = time.Now()
		p.mu.Unlock()
	}()

	triggers, err := p.source.Candidates(p.cfg.Pattern, p.cfg.Remote+"/"+p.cfg.Branch)
	if err != nil {
		return nil, err
	}

	var reports []*workflow.Report
	for _, trigger := range triggers {
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
		if p.alreadySeen(trigger) {
			continue
		}
		rep, err := p.runner.Run(ctx, trigger)
		if err != nil {
			p.logger.Printf("[schedule] %s failed: %v", trigger.Branch, err)
		}
		if rep != nil {
			reports = append(reports, rep)
		}
	}
	return reports, nil
}

func (p *Poller) alreadySeen(trigger domain.Trigger) bool {
	if p.seen == nil || trigger.Revision == "" {
		return false
	}
	candidate := p.cfg.Remote + "/" + trigger.Branch
	seen, err := p.seen.HasRun(p.cfg.Branch, candidate, trigger.Revision)
	if err != nil {
		p.logger.Printf("[schedule] checking history of %s: %v", candidate, err)
		return false
	}
	return seen
}

// Start polls on the cron schedule until ctx is cancelled. A tick that
// fires while the previous poll is still running is skipped.
func (p *Poller) Start(ctx context.Context) error {
	logger := cron.PrintfLogger(p.logger)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(p.cfg.Cron, func() {
		if _, err := p.Poll(ctx); err != nil {
			p.logger.Printf("[schedule] poll failed: %v", err)
		}
	}); err != nil {
		return err
	}

	p.logger.Printf("[schedule] polling %s for %s, next at %s", p.cfg.Remote, p.cfg.Pattern, p.NextRun(time.Now()).Format(time.RFC3339))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

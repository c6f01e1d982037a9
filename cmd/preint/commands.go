package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/pretested-integration/internal/bridge"
	"github.com/hochfrequenz/pretested-integration/internal/buildrunner"
	"github.com/hochfrequenz/pretested-integration/internal/config"
	"github.com/hochfrequenz/pretested-integration/internal/discovery"
	"github.com/hochfrequenz/pretested-integration/internal/domain"
	"github.com/hochfrequenz/pretested-integration/internal/notify"
	"github.com/hochfrequenz/pretested-integration/internal/runstore"
	"github.com/hochfrequenz/pretested-integration/internal/schedule"
	"github.com/hochfrequenz/pretested-integration/internal/vcs"
	"github.com/hochfrequenz/pretested-integration/internal/workflow"
)

var (
	runRevision   string
	runReresolve  bool
	historyLimit  int
	historyBranch string
	historyStatus string
	initForce     bool
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run BRANCH",
		Short: "Integrate one candidate branch",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&runRevision, "revision", "", "integrate this revision instead of the branch head")
	runCmd.Flags().BoolVar(&runReresolve, "reresolve", false, "measure the candidate from the upstream integration branch")
	rootCmd.AddCommand(runCmd)

	// head command
	headCmd := &cobra.Command{
		Use:   "head",
		Short: "Show the head of the integration branch",
		RunE:  runHead,
	}
	rootCmd.AddCommand(headCmd)

	// watch command
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll for candidate branches and integrate them",
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	// history command
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List past integration runs",
		RunE:  runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs")
	historyCmd.Flags().StringVar(&historyBranch, "branch", "", "filter by integration branch")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "filter by status")
	rootCmd.AddCommand(historyCmd)

	// logs command
	logsCmd := &cobra.Command{
		Use:   "logs RUN",
		Short: "Show build output of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  runLogs,
	}
	rootCmd.AddCommand(logsCmd)

	// init command
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default " + config.LocalConfigName,
		RunE:  runInit,
	}
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.FindLocalConfig()
	}
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func newLogger() *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

func openStore(cfg *config.Config) (*runstore.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.DatabasePath), 0755); err != nil {
		return nil, err
	}
	return runstore.New(cfg.Store.DatabasePath)
}

func newNotifier(cfg *config.Config) notify.Notifier {
	return notify.NewMultiNotifier(
		notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
		notify.NewDesktopNotifier(cfg.Notifications.Desktop),
	)
}

func newRunner(cfg *config.Config, store *runstore.Store, logger *log.Logger) (*workflow.Runner, error) {
	bc, err := workflow.BridgeConfig(cfg.Integration)
	if err != nil {
		return nil, err
	}
	bc.ForceReresolve = runReresolve

	builder := buildrunner.New(buildrunner.Config{
		Command:          cfg.Build.Command,
		Env:              cfg.Build.Env,
		UnstableExitCode: cfg.Build.UnstableExitCode,
		Timeout:          cfg.Build.Timeout.Duration,
	}, logger)

	return workflow.New(
		workflow.Config{Bridge: bc, Dir: cfg.Workspace.Dir},
		vcs.NewGitClient(cfg.Workspace.GitExe, logger),
		builder,
		store,
		newNotifier(cfg),
		logger,
	), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runner, err := newRunner(cfg, store, newLogger())
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	rep, err := runner.Run(ctx, domain.Trigger{Branch: args[0], Revision: runRevision})
	printReport(rep)
	return err
}

func printReport(rep *workflow.Report) {
	if rep == nil {
		return
	}
	run := rep.Run
	fmt.Printf("Run %s: %s\n", run.ID, run.Status)
	if run.Commit != "" {
		fmt.Printf("  candidate: %s @ %s\n", run.Candidate, run.Commit)
	}
	if run.Result != nil {
		fmt.Printf("  build:     %s\n", *run.Result)
	}
	if run.Description != "" {
		fmt.Printf("  %s\n", run.Description)
	}
}

func runHead(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	b := bridge.New(bridge.Config{Branch: cfg.Integration.Branch, Remote: cfg.Integration.Remote},
		vcs.NewGitClient(cfg.Workspace.GitExe, nil), bridge.Workspace{Dir: cfg.Workspace.Dir}, newLogger())

	head, err := b.DetermineIntegrationHead()
	if err != nil {
		return err
	}
	if head == nil {
		return fmt.Errorf("integration branch %s not found in %s", b.Branch(), cfg.Workspace.Dir)
	}
	fmt.Printf("%s %s\n", b.Branch(), head.ID)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	logger := newLogger()
	runner, err := newRunner(cfg, store, logger)
	if err != nil {
		return err
	}

	finder := discovery.New(vcs.NewGitClient(cfg.Workspace.GitExe, logger), cfg.Workspace.Dir, cfg.Integration.Remote, logger)
	poller, err := schedule.NewPoller(schedule.Config{
		Cron:    cfg.Schedule.Cron,
		Pattern: cfg.Schedule.CandidatePattern,
		Branch:  cfg.Integration.Branch,
		Remote:  cfg.Integration.Remote,
	}, finder, runner, store, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	fmt.Printf("Watching %s for %s (%s), next poll %s\n",
		cfg.Workspace.Dir, cfg.Schedule.CandidatePattern, cfg.Schedule.Cron,
		humanize.Time(poller.NextRun(time.Now())))
	return poller.Start(ctx)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(runstore.ListOptions{
		Branch: historyBranch,
		Status: domain.RunStatus(historyStatus),
		Limit:  historyLimit,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tBRANCH\tCANDIDATE\tSTATUS\tRESULT\tDURATION")
	for _, r := range runs {
		result := "-"
		if r.Result != nil {
			result = r.Result.String()
		}
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.Duration().Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID), humanize.Time(r.StartedAt), r.Branch, r.Candidate, r.Status, result, duration)
	}
	w.Flush()

	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.GetRun(args[0])
	if err != nil {
		return err
	}
	printReport(&workflow.Report{Run: run})

	entries, err := store.Logs(run.ID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s [%s] %s\n", e.Timestamp.Format(time.TimeOnly), e.Level, e.Message)
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.LocalConfigName
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

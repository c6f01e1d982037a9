// Package buildrunner runs the build command against an integrated
// workspace and maps its exit status onto a build result.
package buildrunner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/pretested-integration/internal/domain"
)

// OutputCallback is called for each line of output
type OutputCallback func(stream, line string)

// Config configures the build runner
type Config struct {
	Command string
	Env     map[string]string
	// UnstableExitCode marks the build unstable instead of failed.
	// Zero disables it.
	UnstableExitCode int
	Timeout          time.Duration
}

// Report describes one finished build
type Report struct {
	Result   domain.Result
	ExitCode int
	Output   string
	Duration time.Duration
}

// Runner executes builds in a workspace
type Runner struct {
	config Config
	logger *log.Logger
}

// New creates a Runner; a nil logger discards output
func New(config Config, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Runner{config: config, logger: logger}
}

// Run executes the build command in dir. Only failures to start the
// command are returned as errors; a failing build is a Report.
func (r *Runner) Run(ctx context.Context, dir string, onOutput OutputCallback) (*Report, error) {
	if strings.TrimSpace(r.config.Command) == "" {
		return nil, errors.New("no build command configured")
	}

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	r.logger.Printf("[build] running %q in %s", r.config.Command, dir)

	cmd := exec.CommandContext(ctx, "sh", "-c", r.config.Command)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range r.config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting build: %w", err)
	}

	var (
		mu     sync.Mutex
		output strings.Builder
		wg     sync.WaitGroup
	)
	stream := func(rd io.Reader, name string) {
		defer wg.Done()
		scanner := bufio.NewScanner(rd)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			output.WriteString(line + "\n")
			mu.Unlock()
			if onOutput != nil {
				onOutput(name, line)
			}
		}
	}
	wg.Add(2)
	go stream(stdout, "stdout")
	go stream(stderr, "stderr")
	wg.Wait()

	err = cmd.Wait()
	report := &Report{
		Output:   output.String(),
		Duration: time.Since(start),
	}

	switch {
	case ctx.Err() != nil:
		report.ExitCode = -1
		report.Result = domain.ResultAborted
	case err == nil:
		report.Result = domain.ResultSuccess
	default:
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("build failed: %w", err)
		}
		report.ExitCode = exitErr.ExitCode()
		report.Result = r.classify(report.ExitCode)
	}

	r.logger.Printf("[build] finished in %.2fs with exit code %d: %s",
		report.Duration.Seconds(), report.ExitCode, report.Result)
	return report, nil
}

func (r *Runner) classify(exitCode int) domain.Result {
	if r.config.UnstableExitCode != 0 && exitCode == r.config.UnstableExitCode {
		return domain.ResultUnstable
	}
	return domain.ResultFailure
}

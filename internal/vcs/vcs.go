// Package vcs runs version-control commands synchronously in a working
// directory. A non-zero exit is reported through the exit code; the error
// return is reserved for failures to start or wait for the process.
package vcs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
)

// Client executes version-control commands
type Client interface {
	// Run executes the command and captures combined stdout and stderr.
	Run(dir string, args ...string) (int, string, error)
	// Exec executes the command and reports only its exit code.
	Exec(dir string, args ...string) (int, error)
}

// GitClient shells out to the git executable
type GitClient struct {
	exe    string
	logger *log.Logger
}

// NewGitClient creates a client for the given git executable.
// An empty exe means "git" from PATH; a nil logger discards output.
func NewGitClient(exe string, logger *log.Logger) *GitClient {
	if strings.TrimSpace(exe) == "" {
		exe = "git"
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &GitClient{exe: exe, logger: logger}
}

// Run executes git with args in dir, returning its exit code and combined output
func (g *GitClient) Run(dir string, args ...string) (int, string, error) {
	var out bytes.Buffer
	code, err := g.run(dir, &out, args)
	return code, out.String(), err
}

// Exec executes git with args in dir, discarding output
func (g *GitClient) Exec(dir string, args ...string) (int, error) {
	return g.run(dir, nil, args)
}

func (g *GitClient) run(dir string, out io.Writer, args []string) (int, error) {
	g.logger.Printf("[vcs] %s %s (in %s)", g.exe, strings.Join(args, " "), dir)

	cmd := exec.Command(g.exe, args...)
	cmd.Dir = dir
	if out != nil {
		cmd.Stdout = out
		cmd.Stderr = out
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		g.logger.Printf("[vcs] %s %s exited with code %d", g.exe, args[0], exitErr.ExitCode())
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("running %s %s: %w", g.exe, strings.Join(args, " "), err)
}

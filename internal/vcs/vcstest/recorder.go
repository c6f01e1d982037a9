// Package vcstest provides a recording fake of vcs.Client.
package vcstest

import (
	"strings"
	"sync"
)

// Response is the canned reply for a command
type Response struct {
	ExitCode int
	Output   string
	Err      error
}

// Call is one recorded invocation
type Call struct {
	Dir  string
	Args []string
}

// String renders the call as a command line without the executable
func (c Call) String() string {
	return strings.Join(c.Args, " ")
}

// Recorder records every invocation and replies with canned responses.
// Responses are matched by the longest registered argument prefix;
// unmatched commands succeed with empty output.
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string]Response
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{responses: make(map[string]Response)}
}

// On registers a response for commands starting with args
func (r *Recorder) On(resp Response, args ...string) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[strings.Join(args, " ")] = resp
	return r
}

// Run implements vcs.Client
func (r *Recorder) Run(dir string, args ...string) (int, string, error) {
	resp := r.record(dir, args)
	return resp.ExitCode, resp.Output, resp.Err
}

// Exec implements vcs.Client
func (r *Recorder) Exec(dir string, args ...string) (int, error) {
	resp := r.record(dir, args)
	return resp.ExitCode, resp.Err
}

func (r *Recorder) record(dir string, args []string) Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Dir: dir, Args: append([]string(nil), args...)})

	line := strings.Join(args, " ")
	var best string
	found := false
	for prefix := range r.responses {
		if line != prefix && !strings.HasPrefix(line, prefix+" ") {
			continue
		}
		if !found || len(prefix) > len(best) {
			best = prefix
			found = true
		}
	}
	if !found {
		return Response{}
	}
	return r.responses[best]
}

// Calls returns a copy of all recorded invocations
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many recorded calls start with the given subcommand
func (r *Recorder) Count(subcommand string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.calls {
		if len(c.Args) > 0 && c.Args[0] == subcommand {
			n++
		}
	}
	return n
}

// Package discovery finds candidate branches waiting for integration.
package discovery

import (
	"fmt"
	"io"
	"log"
	"path"
	"sort"
	"strings"

	"github.com/hochfrequenz/pretested-integration/internal/domain"
	"github.com/hochfrequenz/pretested-integration/internal/vcs"
)

// Finder lists remote-tracking branches of one remote
type Finder struct {
	client vcs.Client
	dir    string
	remote string
	logger *log.Logger
}

// New creates a Finder for the working copy in dir
func New(client vcs.Client, dir, remote string, logger *log.Logger) *Finder {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if remote == "" {
		remote = "origin"
	}
	return &Finder{client: client, dir: dir, remote: remote, logger: logger}
}

// Candidates fetches the remote and returns one trigger per branch whose
// name matches pattern (path.Match syntax, e.g. "ready/*"), pinned to the
// branch head. exclude names branches never offered, such as the
// integration branch itself.
func (f *Finder) Candidates(pattern string, exclude ...string) ([]domain.Trigger, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid candidate pattern %q: %w", pattern, err)
	}

	code, out, err := f.client.Run(f.dir, "fetch", "--prune", f.remote)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", f.remote, err)
	}
	if code != 0 {
		return nil, fmt.Errorf("fetching %s: git exited %d: %s", f.remote, code, strings.TrimSpace(out))
	}

	prefix := "refs/remotes/" + f.remote + "/"
	code, out, err = f.client.Run(f.dir, "for-each-ref", "--format=%(refname) %(objectname)", prefix)
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	if code != 0 {
		return nil, fmt.Errorf("listing branches: git exited %d: %s", code, strings.TrimSpace(out))
	}

	skip := make(map[string]bool, len(exclude)+1)
	skip["HEAD"] = true
	for _, e := range exclude {
		skip[strings.TrimPrefix(e, f.remote+"/")] = true
	}

	var triggers []domain.Trigger
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || !strings.HasPrefix(fields[0], prefix) {
			continue
		}
		name := strings.TrimPrefix(fields[0], prefix)
		if skip[name] {
			continue
		}
		if ok, _ := path.Match(pattern, name); !ok {
			continue
		}
		triggers = append(triggers, domain.Trigger{Branch: name, Revision: fields[1]})
	}

	sort.Slice(triggers, func(i, j int) bool { return triggers[i].Branch < triggers[j].Branch })
	f.logger.Printf("[discovery] %d candidate(s) match %s on %s", len(triggers), pattern, f.remote)
	return triggers, nil
}

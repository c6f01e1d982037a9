package workflow

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hochfrequenz/pretested-integration/internal/notify"
)

// upstream is a bare remote with master and a "feature" branch, a seed
// clone used to push changes, and the workspace clone runs operate on
type upstream struct {
	remote    string
	seed      string
	work      string
	base      string
	featureID string
}

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v in %s failed: %v\n%s", args, dir, err, out)
	}
	return strings.TrimSpace(string(out))
}

func identity(t *testing.T, dir string) {
	t.Helper()
	git(t, dir, "config", "user.email", "test@test.com")
	git(t, dir, "config", "user.name", "Test")
	git(t, dir, "config", "commit.gpgsign", "false")
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func setupUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{
		remote: filepath.Join(t.TempDir(), "remote.git"),
		seed:   t.TempDir(),
		work:   filepath.Join(t.TempDir(), "work"),
	}

	git(t, filepath.Dir(u.remote), "init", "--bare", u.remote)
	git(t, u.remote, "symbolic-ref", "HEAD", "refs/heads/master")

	git(t, u.seed, "init")
	git(t, u.seed, "symbolic-ref", "HEAD", "refs/heads/master")
	identity(t, u.seed)
	write(t, u.seed, "README.md", "# Test\n")
	git(t, u.seed, "add", ".")
	git(t, u.seed, "commit", "-m", "Initial commit")
	git(t, u.seed, "remote", "add", "origin", u.remote)
	git(t, u.seed, "push", "origin", "master")
	u.base = git(t, u.seed, "rev-parse", "HEAD")

	git(t, u.seed, "checkout", "-b", "feature")
	write(t, u.seed, "feature.txt", "one\n")
	git(t, u.seed, "add", "feature.txt")
	git(t, u.seed, "commit", "-m", "Add feature")
	git(t, u.seed, "push", "origin", "feature")
	u.featureID = git(t, u.seed, "rev-parse", "HEAD")
	git(t, u.seed, "checkout", "master")

	git(t, filepath.Dir(u.work), "clone", u.remote, u.work)
	identity(t, u.work)
	return u
}

// upstreamHead returns the revision of branch in the bare remote
func (u *upstream) upstreamHead(t *testing.T, branch string) string {
	t.Helper()
	return git(t, u.remote, "rev-parse", "refs/heads/"+branch)
}

func (u *upstream) branchExists(t *testing.T, branch string) bool {
	t.Helper()
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	cmd.Dir = u.remote
	return cmd.Run() == nil
}

// pushConflict adds feature.txt on upstream master with other content
func (u *upstream) pushConflict(t *testing.T) {
	t.Helper()
	write(t, u.seed, "feature.txt", "master\n")
	git(t, u.seed, "add", "feature.txt")
	git(t, u.seed, "commit", "-m", "Conflicting change")
	git(t, u.seed, "push", "origin", "master")
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Send(n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

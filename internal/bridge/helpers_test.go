package bridge

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// fixture is an upstream bare repository with a master branch and a
// two-commit feature branch, plus a clone used as the workspace.
type fixture struct {
	remote    string
	seed      string
	work      string
	base      string // master head before integration
	featureID string // feature head
}

func gitIn(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v in %s failed: %v\n%s", args, dir, err, out)
	}
	return strings.TrimSpace(string(out))
}

func configureIdentity(t *testing.T, dir string) {
	t.Helper()
	gitIn(t, dir, "config", "user.email", "test@test.com")
	gitIn(t, dir, "config", "user.name", "Test")
	gitIn(t, dir, "config", "commit.gpgsign", "false")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		remote: filepath.Join(t.TempDir(), "remote.git"),
		seed:   t.TempDir(),
		work:   filepath.Join(t.TempDir(), "work"),
	}

	gitIn(t, filepath.Dir(f.remote), "init", "--bare", f.remote)
	gitIn(t, f.remote, "symbolic-ref", "HEAD", "refs/heads/master")

	gitIn(t, f.seed, "init")
	gitIn(t, f.seed, "symbolic-ref", "HEAD", "refs/heads/master")
	configureIdentity(t, f.seed)
	writeFile(t, f.seed, "README.md", "# Test\n")
	gitIn(t, f.seed, "add", ".")
	gitIn(t, f.seed, "commit", "-m", "Initial commit")
	gitIn(t, f.seed, "remote", "add", "origin", f.remote)
	gitIn(t, f.seed, "push", "origin", "master")
	f.base = gitIn(t, f.seed, "rev-parse", "HEAD")

	gitIn(t, f.seed, "checkout", "-b", "feature")
	writeFile(t, f.seed, "feature.txt", "one\n")
	gitIn(t, f.seed, "add", "feature.txt")
	gitIn(t, f.seed, "commit", "-m", "Add feature")
	writeFile(t, f.seed, "feature.txt", "one\ntwo\n")
	gitIn(t, f.seed, "commit", "-am", "Extend feature")
	gitIn(t, f.seed, "push", "origin", "feature")
	f.featureID = gitIn(t, f.seed, "rev-parse", "HEAD")
	gitIn(t, f.seed, "checkout", "master")

	gitIn(t, filepath.Dir(f.work), "clone", f.remote, f.work)
	configureIdentity(t, f.work)

	return f
}

// deleteUpstream removes a branch from the bare remote
func (f *fixture) deleteUpstream(t *testing.T, branch string) {
	t.Helper()
	gitIn(t, f.remote, "branch", "-D", branch)
}

// pushConflict puts a commit on upstream master that conflicts with feature
func (f *fixture) pushConflict(t *testing.T) {
	t.Helper()
	writeFile(t, f.seed, "feature.txt", "master\n")
	gitIn(t, f.seed, "add", "feature.txt")
	gitIn(t, f.seed, "commit", "-m", "Conflicting change")
	gitIn(t, f.seed, "push", "origin", "master")
}

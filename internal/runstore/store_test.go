package runstore

import (
	"errors"
	"testing"
	"time"

	"github.com/hochfrequenz/pretested-integration/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_InsertAndGetRun(t *testing.T) {
	store := newTestStore(t)

	run := &domain.Run{
		ID:        "run-1",
		Branch:    "master",
		Candidate: "origin/ready/login",
		Commit:    "abc123",
		Strategy:  "squash",
		Status:    domain.RunRunning,
		StartedAt: time.Now(),
	}
	if err := store.InsertRun(run); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Candidate != run.Candidate {
		t.Errorf("Candidate = %q, want %q", got.Candidate, run.Candidate)
	}
	if got.Status != domain.RunRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.Result != nil {
		t.Errorf("Result = %v, want nil", *got.Result)
	}
	if got.FinishedAt != nil {
		t.Errorf("FinishedAt = %v, want nil", got.FinishedAt)
	}
}

func TestStore_UpdateRun(t *testing.T) {
	store := newTestStore(t)

	start := time.Now().Add(-time.Minute)
	run := &domain.Run{ID: "run-1", Branch: "master", Status: domain.RunRunning, StartedAt: start}
	if err := store.InsertRun(run); err != nil {
		t.Fatal(err)
	}

	result := domain.ResultUnstable
	finished := time.Now()
	run.Status = domain.RunRolledBack
	run.Tip = "def456"
	run.Result = &result
	run.FinishedAt = &finished
	if err := store.UpdateRun(run); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RunRolledBack {
		t.Errorf("Status = %q, want rolled_back", got.Status)
	}
	if got.Result == nil || *got.Result != domain.ResultUnstable {
		t.Errorf("Result = %v, want unstable", got.Result)
	}
	if got.FinishedAt == nil {
		t.Fatal("FinishedAt should be set")
	}
	if got.Duration() <= 0 {
		t.Errorf("Duration = %v, want > 0", got.Duration())
	}
}

func TestStore_UpdateMissingRun(t *testing.T) {
	store := newTestStore(t)

	err := store.UpdateRun(&domain.Run{ID: "missing", Status: domain.RunFailed})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateRun() error = %v, want ErrNotFound", err)
	}
	if err := store.SetDescription("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetDescription() error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() error = %v, want ErrNotFound", err)
	}
}

func TestStore_SetDescription(t *testing.T) {
	store := newTestStore(t)
	store.InsertRun(&domain.Run{ID: "run-1", Branch: "master", Status: domain.RunRunning, StartedAt: time.Now()})

	if err := store.SetDescription("run-1", "Merge conflict"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetRun("run-1")
	if got.Description != "Merge conflict" {
		t.Errorf("Description = %q, want Merge conflict", got.Description)
	}
}

func TestStore_ListRuns(t *testing.T) {
	store := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	runs := []*domain.Run{
		{ID: "a", Branch: "master", Candidate: "origin/ready/a", Status: domain.RunPublished},
		{ID: "b", Branch: "master", Candidate: "origin/ready/b", Status: domain.RunRolledBack},
		{ID: "c", Branch: "release", Candidate: "origin/ready/a", Status: domain.RunPublished},
	}
	for i, run := range runs {
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.InsertRun(run); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.ListRuns(ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("All runs count = %d, want 3", len(all))
	}
	if all[0].ID != "c" {
		t.Errorf("newest run = %q, want c", all[0].ID)
	}

	master, _ := store.ListRuns(ListOptions{Branch: "master"})
	if len(master) != 2 {
		t.Errorf("master runs = %d, want 2", len(master))
	}

	published, _ := store.ListRuns(ListOptions{Status: domain.RunPublished})
	if len(published) != 2 {
		t.Errorf("published runs = %d, want 2", len(published))
	}

	limited, _ := store.ListRuns(ListOptions{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limited runs = %d, want 1", len(limited))
	}
}

func TestStore_LastIntegrated(t *testing.T) {
	store := newTestStore(t)

	got, err := store.LastIntegrated("master", "origin/ready/a")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("LastIntegrated() = %v, want nil", got)
	}

	base := time.Now().Add(-time.Hour)
	store.InsertRun(&domain.Run{ID: "1", Branch: "master", Candidate: "origin/ready/a", Commit: "old", Status: domain.RunPublished, StartedAt: base})
	store.InsertRun(&domain.Run{ID: "2", Branch: "master", Candidate: "origin/ready/a", Commit: "new", Status: domain.RunPublished, StartedAt: base.Add(time.Minute)})
	store.InsertRun(&domain.Run{ID: "3", Branch: "master", Candidate: "origin/ready/a", Commit: "broken", Status: domain.RunRolledBack, StartedAt: base.Add(2 * time.Minute)})

	got, err = store.LastIntegrated("master", "origin/ready/a")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "new" {
		t.Fatalf("LastIntegrated() = %v, want new", got)
	}
	if got.Get(domain.MetaBranch) != "origin/ready/a" {
		t.Errorf("branch metadata = %q", got.Get(domain.MetaBranch))
	}
}

func TestStore_Logs(t *testing.T) {
	store := newTestStore(t)
	store.InsertRun(&domain.Run{ID: "run-1", Branch: "master", Status: domain.RunRunning, StartedAt: time.Now()})

	store.AppendLog("run-1", "info", "integrating origin/ready/a")
	store.AppendLog("run-1", "error", "build failed")

	logs, err := store.Logs("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Fatalf("logs = %d, want 2", len(logs))
	}
	if logs[1].Level != "error" || logs[1].Message != "build failed" {
		t.Errorf("logs[1] = %+v", logs[1])
	}

	// foreign key rejects logs for unknown runs
	if err := store.AppendLog("missing", "info", "x"); err == nil {
		t.Error("expected foreign key violation")
	}
}

func TestStore_HasRun(t *testing.T) {
	store := newTestStore(t)
	store.InsertRun(&domain.Run{ID: "1", Branch: "master", Candidate: "origin/ready/a", Commit: "abc", Status: domain.RunRolledBack, StartedAt: time.Now()})

	seen, err := store.HasRun("master", "origin/ready/a", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("HasRun() = false for a rolled back commit")
	}

	seen, _ = store.HasRun("master", "origin/ready/a", "def")
	if seen {
		t.Error("HasRun() = true for a new commit")
	}
}

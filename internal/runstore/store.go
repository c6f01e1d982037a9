package runstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hochfrequenz/pretested-integration/internal/domain"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("run not found")

// Store provides SQLite-backed run history
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertRun records a run that has just started
func (s *Store) InsertRun(run *domain.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, branch, candidate, commit_id, tip, strategy, status, result, description, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Branch,
		run.Candidate,
		run.Commit,
		run.Tip,
		run.Strategy,
		string(run.Status),
		resultValue(run.Result),
		run.Description,
		run.StartedAt,
		timeValue(run.FinishedAt),
	)
	return err
}

// UpdateRun stores the current state of a run
func (s *Store) UpdateRun(run *domain.Run) error {
	res, err := s.db.Exec(`
		UPDATE runs SET candidate = ?, commit_id = ?, tip = ?, status = ?, result = ?, description = ?, finished_at = ?
		WHERE id = ?
	`,
		run.Candidate,
		run.Commit,
		run.Tip,
		string(run.Status),
		resultValue(run.Result),
		run.Description,
		timeValue(run.FinishedAt),
		run.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, run.ID)
	}
	return nil
}

// SetDescription replaces the human readable description of a run
func (s *Store) SetDescription(id, description string) error {
	res, err := s.db.Exec(`UPDATE runs SET description = ? WHERE id = ?`, description, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*domain.Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// ListOptions specifies filters for listing runs
type ListOptions struct {
	Branch    string
	Candidate string
	Status    domain.RunStatus
	Limit     int
}

// ListRuns returns runs matching the given options, newest first
func (s *Store) ListRuns(opts ListOptions) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []interface{}

	if opts.Branch != "" {
		query += " AND branch = ?"
		args = append(args, opts.Branch)
	}
	if opts.Candidate != "" {
		query += " AND candidate = ?"
		args = append(args, opts.Candidate)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}

	query += " ORDER BY started_at DESC, rowid DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LastIntegrated returns the commit of the newest published run of
// candidate into branch, or nil if it was never integrated
func (s *Store) LastIntegrated(branch, candidate string) (*domain.Commit, error) {
	runs, err := s.ListRuns(ListOptions{
		Branch:    branch,
		Candidate: candidate,
		Status:    domain.RunPublished,
		Limit:     1,
	})
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return domain.NewCommit(runs[0].Commit, map[string]string{domain.MetaBranch: candidate}), nil
}

// HasRun reports whether commit of candidate was already attempted on
// branch, whatever the outcome
func (s *Store) HasRun(branch, candidate, commit string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE branch = ? AND candidate = ? AND commit_id = ?`,
		branch, candidate, commit).Scan(&n)
	return n > 0, err
}

// LogEntry is a single log line attached to a run
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// AppendLog attaches a log line to a run
func (s *Store) AppendLog(runID, level, message string) error {
	_, err := s.db.Exec(`INSERT INTO logs (run_id, timestamp, level, message) VALUES (?, ?, ?, ?)`,
		runID, time.Now(), level, message)
	return err
}

// Logs returns the log lines of a run in insertion order
func (s *Store) Logs(runID string) ([]LogEntry, error) {
	rows, err := s.db.Query(`SELECT timestamp, level, message FROM logs WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		var level, message sql.NullString
		if err := rows.Scan(&e.Timestamp, &level, &message); err != nil {
			return nil, err
		}
		e.Level = level.String
		e.Message = message.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const runColumns = `id, branch, candidate, commit_id, tip, strategy, status, result, description, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var run domain.Run
	var candidate, commit, tip, strategy, result, description sql.NullString
	var status string
	var finished sql.NullTime

	err := row.Scan(&run.ID, &run.Branch, &candidate, &commit, &tip, &strategy, &status, &result, &description, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}

	run.Candidate = candidate.String
	run.Commit = commit.String
	run.Tip = tip.String
	run.Strategy = strategy.String
	run.Status = domain.RunStatus(status)
	run.Description = description.String
	if result.Valid && result.String != "" {
		r, err := domain.ParseResult(result.String)
		if err != nil {
			return nil, err
		}
		run.Result = &r
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func resultValue(r *domain.Result) any {
	if r == nil {
		return nil
	}
	return r.String()
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

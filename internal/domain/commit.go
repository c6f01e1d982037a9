package domain

import "strings"

// Metadata keys set on commits returned by candidate discovery
const (
	MetaBranch = "branch"
	MetaBase   = "base"
)

// Commit identifies a single candidate revision. It is a value: a new
// Commit is produced for every integration attempt.
type Commit struct {
	ID       string
	Metadata map[string]string
}

// NewCommit returns a commit for the given revision, or nil if the
// revision is blank.
func NewCommit(id string, metadata map[string]string) *Commit {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	return &Commit{ID: id, Metadata: meta}
}

// Equal compares commits by revision only
func (c Commit) Equal(other Commit) bool {
	return c.ID == other.ID
}

// Get returns a metadata value, or "" if absent
func (c Commit) Get(key string) string {
	return c.Metadata[key]
}

// Short returns an abbreviated revision for log lines
func (c Commit) Short() string {
	if len(c.ID) > 8 {
		return c.ID[:8]
	}
	return c.ID
}

func (c Commit) String() string {
	return c.ID
}

// IntegrationTip is the integration branch revision captured before a
// merge, used as the rollback target.
type IntegrationTip string

// IsZero reports whether no tip was captured
func (t IntegrationTip) IsZero() bool {
	return strings.TrimSpace(string(t)) == ""
}

// Trigger is what the discovery collaborator hands the engine for one
// run: the candidate branch (remote-tracking name, e.g. "origin/feature")
// and optionally its head revision.
type Trigger struct {
	Branch   string
	Revision string
}

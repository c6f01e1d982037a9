package schedule

import (
	"fmt"
	"path"

	"github.com/robfig/cron/v3"
)

// Config selects when to poll and which branches are candidates
type Config struct {
	Cron    string
	Pattern string
	// Branch and Remote identify the integration branch, which is never
	// offered as a candidate.
	Branch string
	Remote string
}

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if c.Pattern == "" {
		return fmt.Errorf("candidate pattern is required")
	}
	if _, err := path.Match(c.Pattern, ""); err != nil {
		return fmt.Errorf("invalid candidate pattern: %w", err)
	}
	if c.Remote == "" {
		c.Remote = "origin"
	}
	if c.Branch == "" {
		c.Branch = "master"
	}
	return nil
}

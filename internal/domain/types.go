package domain

import (
	"fmt"
	"strings"
)

// Result is the outcome of a build. Results are totally ordered:
// a lower ordinal is a better result.
type Result int

const (
	ResultSuccess Result = iota
	ResultUnstable
	ResultFailure
	ResultNotBuilt
	ResultAborted
)

var resultNames = []string{"success", "unstable", "failure", "not_built", "aborted"}

// String returns the lowercase name of the result
func (r Result) String() string {
	if r < 0 || int(r) >= len(resultNames) {
		return fmt.Sprintf("result(%d)", int(r))
	}
	return resultNames[r]
}

// ParseResult parses a result name such as "success" or "UNSTABLE"
func ParseResult(s string) (Result, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	for i, n := range resultNames {
		if n == name {
			return Result(i), nil
		}
	}
	return ResultFailure, fmt.Errorf("unknown build result: %q", s)
}

// IsBetterOrEqualTo reports whether r meets the threshold
func (r Result) IsBetterOrEqualTo(threshold Result) bool {
	return r <= threshold
}

// IsWorseThan reports whether r falls short of the threshold
func (r Result) IsWorseThan(threshold Result) bool {
	return r > threshold
}

// Outcome is the tri-state result of an integration attempt
type Outcome string

const (
	OutcomeIntegrated  Outcome = "integrated"
	OutcomeNothingToDo Outcome = "nothing_to_do"
	OutcomeFailed      Outcome = "failed"
)

// StrategyResult is what an integration strategy reports back.
// Reason carries the captured tool output for failed attempts.
type StrategyResult struct {
	Outcome Outcome
	Reason  string
}

// Integrated reports a successful merge
func Integrated() StrategyResult {
	return StrategyResult{Outcome: OutcomeIntegrated}
}

// NothingToDo reports that no eligible candidate existed
func NothingToDo(reason string) StrategyResult {
	return StrategyResult{Outcome: OutcomeNothingToDo, Reason: reason}
}

// Failed reports a merge or commit step that exited non-zero
func Failed(reason string) StrategyResult {
	return StrategyResult{Outcome: OutcomeFailed, Reason: reason}
}

package notify

import (
	"errors"
	"fmt"

	"github.com/hochfrequenz/pretested-integration/internal/domain"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	RunID   string // Optional run reference
	Branch  string // Optional candidate branch
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// ForRun builds the notification announcing a finished integration run
func ForRun(run *domain.Run) Notification {
	n := Notification{
		RunID:   run.ID,
		Branch:  run.Candidate,
		Message: run.Description,
	}
	target := run.Branch
	switch run.Status {
	case domain.RunPublished:
		n.Type = NotifySuccess
		n.Title = fmt.Sprintf("Integrated %s into %s", run.Candidate, target)
	case domain.RunRolledBack:
		n.Type = NotifyWarning
		n.Title = fmt.Sprintf("Rolled back %s on %s", run.Candidate, target)
	case domain.RunFailed:
		n.Type = NotifyError
		n.Title = fmt.Sprintf("Integration of %s into %s failed", run.Candidate, target)
	default:
		n.Type = NotifyInfo
		n.Title = fmt.Sprintf("Nothing integrated into %s", target)
	}
	if run.Result != nil && n.Message == "" {
		n.Message = "Build result: " + run.Result.String()
	}
	return n
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers and joins their errors
func (m *MultiNotifier) Send(n Notification) error {
	var errs []error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }

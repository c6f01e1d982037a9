package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hochfrequenz/pretested-integration/internal/domain"
)

func TestSlackMessage_Build(t *testing.T) {
	msg := SlackMessage{
		Text: "Integrated origin/ready/login into master",
		Attachments: []SlackAttachment{
			{
				Color: "good",
				Title: "origin/ready/login",
				Text:  "Integrated origin/ready/login",
			},
		},
	}

	payload, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	if len(payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	var got SlackMessage
	// Mock Slack server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Test",
		Message: "Test message",
		Type:    NotifyInfo,
		RunID:   "run-1",
		Branch:  "origin/ready/login",
	})

	if err != nil {
		t.Errorf("Send failed: %v", err)
	}
	if len(got.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1", len(got.Attachments))
	}
	if got.Attachments[0].Title != "origin/ready/login" {
		t.Errorf("Title = %q, want branch", got.Attachments[0].Title)
	}
	if got.Attachments[0].Footer != "preint run run-1" {
		t.Errorf("Footer = %q", got.Attachments[0].Footer)
	}
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	if err := NewSlackNotifier(server.URL).Send(Notification{Title: "Test"}); err == nil {
		t.Error("expected error for 403")
	}
}

func TestSlackNotifier_Disabled(t *testing.T) {
	if err := NewSlackNotifier("").Send(Notification{Title: "Test"}); err != nil {
		t.Errorf("disabled notifier returned %v", err)
	}
}

func TestForRun(t *testing.T) {
	failure := domain.ResultFailure
	tests := []struct {
		status domain.RunStatus
		want   NotificationType
	}{
		{domain.RunPublished, NotifySuccess},
		{domain.RunRolledBack, NotifyWarning},
		{domain.RunFailed, NotifyError},
		{domain.RunSkipped, NotifyInfo},
	}

	for _, tt := range tests {
		run := &domain.Run{ID: "run-1", Branch: "master", Candidate: "origin/ready/login", Status: tt.status, Result: &failure}
		n := ForRun(run)
		if n.Type != tt.want {
			t.Errorf("ForRun(%s).Type = %v, want %v", tt.status, n.Type, tt.want)
		}
		if n.RunID != "run-1" || n.Branch != "origin/ready/login" {
			t.Errorf("ForRun(%s) = %+v", tt.status, n)
		}
		if n.Message != "Build result: failure" {
			t.Errorf("ForRun(%s).Message = %q", tt.status, n.Message)
		}
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

func TestMultiNotifier_JoinsErrors(t *testing.T) {
	var called []string
	failing := &mockNotifier{name: "failing", calls: &called, err: errors.New("webhook down")}
	ok := &mockNotifier{name: "ok", calls: &called}

	err := NewMultiNotifier(failing, ok).Send(Notification{Title: "Test"})
	if err == nil || err.Error() != "webhook down" {
		t.Errorf("Send() error = %v, want webhook down", err)
	}
	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

func TestEscapeAppleScript(t *testing.T) {
	got := escapeAppleScript(`say "hi" \ bye`)
	want := `say \"hi\" \\ bye`
	if got != want {
		t.Errorf("escapeAppleScript() = %q, want %q", got, want)
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
	err   error
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return m.err
}

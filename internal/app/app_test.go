package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"formlo/internal/api"
	"formlo/internal/app"
	"formlo/internal/logging"
	"formlo/internal/session"
	"formlo/internal/testsupport"
	"formlo/internal/tracker"
	"formlo/internal/view"
)

func newApp(t *testing.T, backend *testsupport.Backend) *app.App {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(backend.URL()))
	a, err := app.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	// Rebuild the tracker with a fast poll interval for tests.
	opts := tracker.OptionsFromConfig(cfg)
	opts.PollInterval = 10 * time.Millisecond
	a.Tracker = tracker.New(a.Client, opts, logging.NewNop())
	return a
}

func writeDoc(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}
	return path
}

// Scenario: a submitted PDF progresses to completion, the collection is
// refreshed exactly once, and the view switches to the dashboard.
func TestUploadToCompletion(t *testing.T) {
	backend := testsupport.StartBackend(t)
	backend.SetSession(api.Session{ID: "u1", Name: "Ada"})
	backend.ScriptUpload(api.ConversionJob{ID: "j1", Filename: "quiz.pdf", Status: api.JobProcessing, Progress: 0})
	backend.ScriptJob("j1",
		api.ConversionJob{ID: "j1", Status: api.JobProcessing, Progress: 40},
		api.ConversionJob{ID: "j1", Status: api.JobCompleted, Progress: 100, FormID: "f1"},
	)
	backend.SetForms(api.FormRecord{ID: "r1", FormID: "f1", FormTitle: "Quiz", CreatedAt: time.Now()})

	a := newApp(t, backend)
	if state := a.Startup(context.Background()); state != session.StateAuthenticated {
		t.Fatalf("expected authenticated startup, got %s", state)
	}
	refreshesBefore := backend.Requests("/forms")

	event, err := a.SubmitAndWait(context.Background(), writeDoc(t, "quiz.pdf", 2<<20), nil)
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}
	if event.Kind != tracker.EventCompleted {
		t.Fatalf("expected completion, got %s", event.Kind)
	}

	if got := backend.Requests("/forms") - refreshesBefore; got != 1 {
		t.Fatalf("expected exactly one refresh after completion, got %d", got)
	}
	if a.Router.Tab() != view.TabDashboard {
		t.Fatalf("view did not switch to dashboard: %s", a.Router.Tab())
	}
	if list := a.Forms.List(); len(list) != 1 || list[0].FormID != "f1" {
		t.Fatalf("collection not reconciled: %#v", list)
	}
}

// Scenario: a failed conversion surfaces the backend's message, triggers
// no refresh, and leaves the view on upload.
func TestUploadFailureKeepsUploadView(t *testing.T) {
	backend := testsupport.StartBackend(t)
	backend.SetSession(api.Session{ID: "u1", Name: "Ada"})
	backend.ScriptUpload(api.ConversionJob{ID: "j2", Filename: "doc.docx", Status: api.JobProcessing})
	backend.ScriptJob("j2",
		api.ConversionJob{ID: "j2", Status: api.JobFailed, ErrorMessage: "unsupported layout"},
	)

	a := newApp(t, backend)
	a.Startup(context.Background())
	refreshesBefore := backend.Requests("/forms")

	event, err := a.SubmitAndWait(context.Background(), writeDoc(t, "doc.docx", 1024), nil)
	if err != nil {
		t.Fatalf("SubmitAndWait failed: %v", err)
	}
	if event.Kind != tracker.EventFailed {
		t.Fatalf("expected failure, got %s", event.Kind)
	}
	if event.Job.ErrorMessage != "unsupported layout" {
		t.Fatalf("error message lost: %q", event.Job.ErrorMessage)
	}
	if got := backend.Requests("/forms") - refreshesBefore; got != 0 {
		t.Fatalf("failure must not refresh the collection, got %d refreshes", got)
	}
	if a.Router.Tab() != view.TabUpload {
		t.Fatalf("view moved off upload: %s", a.Router.Tab())
	}
}

// Scenario: logging out mid-poll cancels the loop, clears the session and
// the forms list, and resets the active tab.
func TestLogoutMidPoll(t *testing.T) {
	backend := testsupport.StartBackend(t)
	backend.SetSession(api.Session{ID: "u1", Name: "Ada"})
	backend.SetForms(api.FormRecord{ID: "r1", FormID: "f1", FormTitle: "Quiz", CreatedAt: time.Now()})
	backend.ScriptUpload(api.ConversionJob{ID: "j3", Filename: "quiz.pdf", Status: api.JobProcessing})
	backend.ScriptJob("j3",
		api.ConversionJob{ID: "j3", Status: api.JobProcessing, Progress: 10},
	)

	a := newApp(t, backend)
	a.Startup(context.Background())
	a.Router.Select(view.TabDashboard)

	if _, err := a.Tracker.Submit(context.Background(), writeDoc(t, "quiz.pdf", 1024)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitFor(t, func() bool { return backend.Requests("/jobs/j3") >= 1 })

	if err := a.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := a.Guard.Session(); err != session.ErrNoSession {
		t.Fatalf("session not cleared: %v", err)
	}
	if a.Forms.Len() != 0 {
		t.Fatal("forms list not cleared on logout")
	}
	if a.Router.Tab() != view.TabUpload {
		t.Fatalf("tab not reset: %s", a.Router.Tab())
	}
	if snap := a.Tracker.Snapshot(); snap.Phase != tracker.PhaseIdle {
		t.Fatalf("poll loop not cancelled: %s", snap.Phase)
	}
	polled := backend.Requests("/jobs/j3")
	time.Sleep(100 * time.Millisecond)
	if got := backend.Requests("/jobs/j3"); got != polled {
		t.Fatalf("polling survived logout: %d -> %d", polled, got)
	}
}

// Scenario: anonymous startup resolves cleanly instead of blocking.
func TestStartupAnonymous(t *testing.T) {
	backend := testsupport.StartBackend(t)
	a := newApp(t, backend)

	if state := a.Startup(context.Background()); state != session.StateAnonymous {
		t.Fatalf("expected anonymous, got %s", state)
	}
	if got := backend.Requests("/forms"); got != 0 {
		t.Fatalf("anonymous startup fetched forms %d times", got)
	}
}

// A refresh failure at startup keeps the cached snapshot available.
func TestStartupKeepsCachedSnapshotOnRefreshFailure(t *testing.T) {
	backend := testsupport.StartBackend(t)
	backend.SetSession(api.Session{ID: "u1", Name: "Ada"})
	backend.SetForms(api.FormRecord{ID: "r1", FormID: "f1", FormTitle: "Quiz", CreatedAt: time.Now()})

	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(backend.URL()))
	first, err := app.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	first.Startup(context.Background())
	if first.Forms.Len() != 1 {
		t.Fatalf("first startup did not populate collection: %d", first.Forms.Len())
	}
	_ = first.Close()

	backend.FailForms(500)
	second, err := app.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("app.New failed: %v", err)
	}
	defer second.Close()
	second.Startup(context.Background())
	if list := second.Forms.List(); len(list) != 1 || list[0].FormID != "f1" {
		t.Fatalf("cached snapshot not served while backend down: %#v", list)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

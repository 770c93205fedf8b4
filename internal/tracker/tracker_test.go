package tracker_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"formlo/internal/api"
	"formlo/internal/client"
	"formlo/internal/logging"
	"formlo/internal/testsupport"
	"formlo/internal/tracker"
)

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}
	return path
}

func newTracker(t *testing.T, backend *testsupport.Backend, opts ...func(*tracker.Options)) *tracker.Tracker {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(backend.URL()))
	c, err := client.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	options := tracker.OptionsFromConfig(cfg)
	options.PollInterval = 10 * time.Millisecond
	for _, opt := range opts {
		opt(&options)
	}
	return tracker.New(c, options, logging.NewNop())
}

func waitEvent(t *testing.T, tr *tracker.Tracker) tracker.Event {
	t.Helper()
	select {
	case event := <-tr.Events():
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tracker event")
		return tracker.Event{}
	}
}

func TestSubmitRejectsDisallowedExtension(t *testing.T) {
	backend := testsupport.StartBackend(t)
	tr := newTracker(t, backend)

	path := writeDoc(t, "tool.exe", "MZ")
	if _, err := tr.Submit(context.Background(), path); err == nil {
		t.Fatal("expected extension error")
	}
	if got := backend.Requests("/upload"); got != 0 {
		t.Fatalf("upload must not be sent, got %d requests", got)
	}
	if tr.Snapshot().Phase != tracker.PhaseIdle {
		t.Fatalf("tracker should stay idle, got %s", tr.Snapshot().Phase)
	}
}

func TestSubmitRejectsOversizedFile(t *testing.T) {
	backend := testsupport.StartBackend(t)
	tr := newTracker(t, backend, func(o *tracker.Options) { o.MaxFileBytes = 4 })

	path := writeDoc(t, "big.txt", "more than four bytes")
	if _, err := tr.Submit(context.Background(), path); err == nil {
		t.Fatal("expected size error")
	}
	if got := backend.Requests("/upload"); got != 0 {
		t.Fatalf("upload must not be sent, got %d requests", got)
	}
}

func TestSubmitTransportFailureCreatesNoJob(t *testing.T) {
	backend := testsupport.StartBackend(t)
	backend.FailUpload(500, "Processing failed: boom")
	tr := newTracker(t, backend)

	path := writeDoc(t, "quiz.pdf", "%PDF-1.4")
	_, err := tr.Submit(context.Background(), path)
	if err == nil {
		t.Fatal("expected upload error")
	}
	if !strings.Contains(err.Error(), "Processing failed: boom") {
		t.Fatalf("server detail lost: %v", err)
	}
	snap := tr.Snapshot()
	if snap.Phase != tracker.PhaseIdle || snap.Job != nil {
		t.Fatalf("no job may exist after failed submit: %#v", snap)
	}
	// No polling may begin.
	time.Sleep(50 * time.Millisecond)
	if got := backend.Requests("/jobs/j1"); got != 0 {
		t.Fatalf("polling started after failed submit: %d requests", got)
	}
}

func TestPollToCompletionStopsPolling(t *testing.T) {
	backend := testsupport.StartBackend(t)
	backend.ScriptUpload(api.ConversionJob{ID: "j1", Filename: "quiz.pdf", Status: api.JobProcessing})
	backend.ScriptJob("j1",
		api.ConversionJob{ID: "j1", Status: api.JobProcessing, Progress: 40},
		api.ConversionJob{ID: "j1", Status: api.JobCompleted, Progress: 100, FormID: "f1"},
	)
	tr := newTracker(t, backend)

	job, err := tr.Submit(context.Background(), writeDoc(t, "quiz.pdf", "%PDF-1.4"))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.Status != api.JobProcessing {
		t.Fatalf("expected processing job, got %s", job.Status)
	}

	event := waitEvent(t, tr)
	if event.Kind != tracker.EventCompleted {
		t.Fatalf("expected completed event, got %s", event.Kind)
	}
	if event.Job.FormID != "f1" {
		t.Fatalf("completed event missing form id: %#v", event.Job)
	}

	snap := tr.Snapshot()
	if snap.Phase != tracker.PhaseCompleted || snap.Job.Progress != 100 {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}

	// The interval must be demonstrably cancelled: no further status
	// requests after several extra poll periods.
	polled := backend.Requests("/jobs/j1")
	time.Sleep(100 * time.Millisecond)
	if got := backend.Requests("/jobs/j1"); got != polled {
		t.Fatalf("polling continued after terminal state: %d -> %d", polled, got)
	}
}

func TestPollToFailureCarriesErrorMessage(t *testing.T) {
	backend := testsupport.StartBackend(t)
	backend.ScriptUpload(api.ConversionJob{ID: "j2", Filename: "doc.docx", Status: api.JobProcessing})
	backend.ScriptJob("j2",
		api.ConversionJob{ID: "j2", Status: api.JobFailed, ErrorMessage: "unsupported layout"},
	)
	tr := newTracker(t, backend)

	if _, err := tr.Submit(context.Background(), writeDoc(t, "doc.docx", "PK")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	event := waitEvent(t, tr)
	if event.Kind != tracker.EventFailed {
		t.Fatalf("expected failed event, got %s", event.Kind)
	}
	if event.Job.ErrorMessage != "unsupported layout" {
		t.Fatalf("error message lost: %#v", event.Job)
	}
	if tr.Snapshot().Phase != tracker.PhaseFailed {
		t.Fatalf("unexpected phase: %s", tr.Snapshot().Phase)
	}
}

func TestPollLastWriteWins(t *testing.T) {
	backend := testsupport.StartBackend(t)
	backend.ScriptUpload(api.ConversionJob{ID: "j3", Filename: "quiz.pdf", Status: api.JobProcessing})
	// A stale lower-progress response after a fresher one: the displayed
	// value is the most recently received, not the maximum.
	backend.ScriptJob("j3",
		api.ConversionJob{ID: "j3", Status: api.JobProcessing, Progress: 60},
		api.ConversionJob{ID: "j3", Status: api.JobProcessing, Progress: 30},
		api.ConversionJob{ID: "j3", Status: api.JobCompleted, Progress: 100},
	)
	release := backend.GateJob("j3")
	tr := newTracker(t, backend)

	if _, err := tr.Submit(context.Background(), writeDoc(t, "quiz.pdf", "%PDF-1.4")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Each poll response is released only after the previous snapshot has
	// been inspected, so every intermediate value is observed.
	release()
	waitFor(t, func() bool {
		snap := tr.Snapshot()
		return snap.Job != nil && snap.Job.Progress == 60
	})

	release()
	waitFor(t, func() bool {
		snap := tr.Snapshot()
		return snap.Job != nil && snap.Job.Progress == 30
	})

	release()
	event := waitEvent(t, tr)
	if event.Kind != tracker.EventCompleted {
		t.Fatalf("expected completion, got %s", event.Kind)
	}
	if snap := tr.Snapshot(); snap.Job == nil || snap.Job.Progress != 100 {
		t.Fatalf("unexpected final snapshot: %#v", snap)
	}
}

func TestPollTransportFailureStalls(t *testing.T) {
	backend := testsupport.StartBackend(t)
	backend.ScriptUpload(api.ConversionJob{ID: "j4", Filename: "quiz.pdf", Status: api.JobProcessing, Progress: 10})
	backend.ScriptJob("j4",
		api.ConversionJob{ID: "j4", Status: api.JobProcessing, Progress: 55},
	)
	tr := newTracker(t, backend)

	if _, err := tr.Submit(context.Background(), writeDoc(t, "quiz.pdf", "%PDF-1.4")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// Let at least one successful poll land, then kill the transport.
	waitFor(t, func() bool { return backend.Requests("/jobs/j4") >= 1 })
	backend.DropConnections(true)

	event := waitEvent(t, tr)
	if event.Kind != tracker.EventStalled {
		t.Fatalf("expected stalled event, got %s", event.Kind)
	}
	snap := tr.Snapshot()
	if snap.Phase != tracker.PhaseStalled {
		t.Fatalf("unexpected phase: %s", snap.Phase)
	}
	// Last-known state is retained, not cleared.
	if snap.Job == nil || snap.Job.Progress != 55 {
		t.Fatalf("last-known job lost: %#v", snap.Job)
	}

	backend.DropConnections(false)
	polled := backend.Requests("/jobs/j4")
	time.Sleep(100 * time.Millisecond)
	if got := backend.Requests("/jobs/j4"); got != polled {
		t.Fatalf("polling continued after transport failure: %d -> %d", polled, got)
	}
}

func TestPollTimeoutIsDistinctFromFailure(t *testing.T) {
	backend := testsupport.StartBackend(t)
	backend.ScriptUpload(api.ConversionJob{ID: "j5", Filename: "quiz.pdf", Status: api.JobProcessing})
	backend.ScriptJob("j5",
		api.ConversionJob{ID: "j5", Status: api.JobProcessing, Progress: 20},
	)
	tr := newTracker(t, backend, func(o *tracker.Options) {
		o.PollTimeout = 50 * time.Millisecond
	})

	if _, err := tr.Submit(context.Background(), writeDoc(t, "quiz.pdf", "%PDF-1.4")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	event := waitEvent(t, tr)
	if event.Kind != tracker.EventTimedOut {
		t.Fatalf("expected timed_out event, got %s", event.Kind)
	}
	if got := tr.Snapshot().Phase; got != tracker.PhaseTimedOut {
		t.Fatalf("unexpected phase: %s", got)
	}
}

func TestCancelStopsPolling(t *testing.T) {
	backend := testsupport.StartBackend(t)
	backend.ScriptUpload(api.ConversionJob{ID: "j6", Filename: "quiz.pdf", Status: api.JobProcessing})
	backend.ScriptJob("j6",
		api.ConversionJob{ID: "j6", Status: api.JobProcessing, Progress: 5},
	)
	tr := newTracker(t, backend)

	if _, err := tr.Submit(context.Background(), writeDoc(t, "quiz.pdf", "%PDF-1.4")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitFor(t, func() bool { return backend.Requests("/jobs/j6") >= 1 })

	tr.Cancel()

	snap := tr.Snapshot()
	if snap.Phase != tracker.PhaseIdle || snap.Job != nil {
		t.Fatalf("cancel did not reset tracker: %#v", snap)
	}
	polled := backend.Requests("/jobs/j6")
	time.Sleep(100 * time.Millisecond)
	if got := backend.Requests("/jobs/j6"); got != polled {
		t.Fatalf("polling continued after cancel: %d -> %d", polled, got)
	}
	// No event is emitted for an explicit cancellation.
	select {
	case event := <-tr.Events():
		t.Fatalf("unexpected event after cancel: %s", event.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResubmitSupersedesActiveJob(t *testing.T) {
	backend := testsupport.StartBackend(t)
	backend.ScriptUpload(api.ConversionJob{ID: "j7", Filename: "first.pdf", Status: api.JobProcessing})
	backend.ScriptJob("j7",
		api.ConversionJob{ID: "j7", Status: api.JobProcessing, Progress: 10},
	)
	tr := newTracker(t, backend)

	if _, err := tr.Submit(context.Background(), writeDoc(t, "first.pdf", "%PDF-1.4")); err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	waitFor(t, func() bool { return backend.Requests("/jobs/j7") >= 1 })

	backend.ScriptUpload(api.ConversionJob{ID: "j8", Filename: "second.pdf", Status: api.JobProcessing})
	backend.ScriptJob("j8",
		api.ConversionJob{ID: "j8", Status: api.JobCompleted, Progress: 100, FormID: "f8"},
	)
	if _, err := tr.Submit(context.Background(), writeDoc(t, "second.pdf", "%PDF-1.4")); err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}

	event := waitEvent(t, tr)
	if event.Kind != tracker.EventCompleted || event.Job.ID != "j8" {
		t.Fatalf("expected completion of superseding job, got %#v", event)
	}

	// The first loop was cancelled: its poll count stays flat.
	polled := backend.Requests("/jobs/j7")
	time.Sleep(100 * time.Millisecond)
	if got := backend.Requests("/jobs/j7"); got != polled {
		t.Fatalf("superseded loop kept polling: %d -> %d", polled, got)
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

package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"formlo/internal/api"
	"formlo/internal/config"
	"formlo/internal/logging"
)

// ErrUploadInProgress means another process holds the upload lock.
var ErrUploadInProgress = errors.New("another upload is already in progress")

// API is the slice of the backend client the tracker depends on.
type API interface {
	Upload(ctx context.Context, filename string, content io.Reader) (*api.ConversionJob, error)
	Job(ctx context.Context, id string) (*api.ConversionJob, error)
}

// Options controls submission guards and polling behavior.
type Options struct {
	PollInterval      time.Duration
	PollTimeout       time.Duration // 0 disables the overall limit
	MaxFileBytes      int64
	AllowedExtensions []string
	LockPath          string
}

// OptionsFromConfig derives tracker options from application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PollInterval:      time.Duration(cfg.Tracker.PollInterval) * time.Second,
		PollTimeout:       time.Duration(cfg.Tracker.PollTimeout) * time.Second,
		MaxFileBytes:      cfg.MaxFileBytes(),
		AllowedExtensions: cfg.Upload.AllowedExtensions,
		LockPath:          cfg.UploadLockPath(),
	}
}

// Tracker owns the lifecycle of a single in-flight conversion job:
// submission, polling, terminal-state detection, and cancellation. At most
// one job is tracked at a time; a new submission supersedes and cancels
// any active poll loop, and a file lock rejects concurrent submissions
// from other processes.
type Tracker struct {
	client API
	opts   Options
	logger *slog.Logger

	events chan Event

	mu       sync.Mutex
	phase    Phase
	filename string
	job      *api.ConversionJob
	cancel   context.CancelFunc
	done     chan struct{}
	lock     *flock.Flock
}

// New builds an idle Tracker.
func New(client API, opts Options, logger *slog.Logger) *Tracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Tracker{
		client: client,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "tracker"),
		events: make(chan Event, 8),
		phase:  PhaseIdle,
	}
}

// Events delivers the one-shot signal each poll loop emits when it stops.
func (t *Tracker) Events() <-chan Event {
	return t.events
}

// Submit validates and uploads the document at path, then begins polling.
// Validation failures and transport failures return an error and create no
// job; polling never starts in those cases. An active poll loop from a
// previous submission is cancelled before the new upload is sent.
func (t *Tracker) Submit(ctx context.Context, path string) (*api.ConversionJob, error) {
	filename := filepath.Base(path)
	if err := t.validate(path); err != nil {
		return nil, err
	}

	// Supersede-and-cancel: the prior loop must not keep running with no
	// UI representation.
	t.Cancel()

	lock, err := t.acquireLock()
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		t.releaseLock(lock)
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer file.Close()

	job, err := t.client.Upload(ctx, filename, file)
	if err != nil {
		t.releaseLock(lock)
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.phase = PhaseTracking
	t.filename = filename
	jobCopy := *job
	t.job = &jobCopy
	t.cancel = cancel
	t.done = done
	t.lock = lock
	t.mu.Unlock()

	t.logger.Info("job submitted",
		logging.Args(
			logging.String(logging.FieldJobID, job.ID),
			logging.String("filename", filename),
		)...)

	go t.poll(loopCtx, job.ID, done)
	return job, nil
}

// Cancel stops any active poll loop and resets the tracker to idle. It is
// reachable from logout, teardown, and a superseding submission.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}

	t.mu.Lock()
	t.phase = PhaseIdle
	t.filename = ""
	t.job = nil
	t.cancel = nil
	t.done = nil
	lock := t.lock
	t.lock = nil
	t.mu.Unlock()

	t.releaseLock(lock)
}

// Snapshot returns a copy of the current tracker state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := Snapshot{Phase: t.phase, Filename: t.filename}
	if t.job != nil {
		jobCopy := *t.job
		snap.Job = &jobCopy
	}
	return snap
}

func (t *Tracker) validate(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	allowed := false
	for _, candidate := range t.opts.AllowedExtensions {
		if ext == candidate {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("file type %q not supported (allowed: %s)",
			ext, strings.Join(t.opts.AllowedExtensions, ", "))
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat document: %w", err)
	}
	if t.opts.MaxFileBytes > 0 && info.Size() > t.opts.MaxFileBytes {
		return fmt.Errorf("file is %d bytes, above the %d MiB limit",
			info.Size(), t.opts.MaxFileBytes>>20)
	}
	return nil
}

func (t *Tracker) acquireLock() (*flock.Flock, error) {
	if t.opts.LockPath == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(t.opts.LockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(t.opts.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire upload lock: %w", err)
	}
	if !ok {
		return nil, ErrUploadInProgress
	}
	return lock, nil
}

func (t *Tracker) releaseLock(lock *flock.Flock) {
	if lock == nil {
		return
	}
	if err := lock.Unlock(); err != nil {
		t.logger.Warn("release upload lock", logging.Error(err))
	}
}

// poll queries job status on a fixed interval until a terminal status is
// observed, a poll fails at the transport level, the timeout elapses, or
// the loop is cancelled. Exactly one of those outcomes ends the loop, and
// the ticker is stopped unconditionally on the way out.
func (t *Tracker) poll(ctx context.Context, jobID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	var deadline time.Time
	if t.opts.PollTimeout > 0 {
		deadline = time.Now().Add(t.opts.PollTimeout)
	}

	logger := t.logger.With(logging.String(logging.FieldJobID, jobID))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			logger.Warn("job polling timed out",
				logging.Args(logging.Duration("after", t.opts.PollTimeout))...)
			t.finish(ctx, PhaseTimedOut, Event{Kind: EventTimedOut, Job: t.lastJob()})
			return
		}

		job, err := t.client.Job(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transport failure is fatal to the loop: no retry, job kept
			// in its last-known state.
			logger.Warn("job poll failed; observation stopped", logging.Error(err))
			t.finish(ctx, PhaseStalled, Event{Kind: EventStalled, Job: t.lastJob()})
			return
		}

		// Last-write-wins: the backend is the sole source of truth.
		t.mu.Lock()
		jobCopy := *job
		t.job = &jobCopy
		t.mu.Unlock()

		switch job.Status {
		case api.JobCompleted:
			logger.Info("job completed",
				logging.Args(logging.String(logging.FieldFormID, job.FormID))...)
			t.finish(ctx, PhaseCompleted, Event{Kind: EventCompleted, Job: *job})
			return
		case api.JobFailed:
			logger.Info("job failed",
				logging.Args(logging.String("error_message", job.ErrorMessage))...)
			t.finish(ctx, PhaseFailed, Event{Kind: EventFailed, Job: *job})
			return
		}
	}
}

func (t *Tracker) lastJob() api.ConversionJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job == nil {
		return api.ConversionJob{}
	}
	return *t.job
}

func (t *Tracker) finish(ctx context.Context, phase Phase, event Event) {
	t.mu.Lock()
	t.phase = phase
	t.cancel = nil
	lock := t.lock
	t.lock = nil
	t.mu.Unlock()

	t.releaseLock(lock)

	if ctx.Err() != nil {
		return
	}
	select {
	case t.events <- event:
	default:
		t.logger.Warn("dropping tracker event; consumer not keeping up",
			logging.Args(logging.String("kind", string(event.Kind)))...)
	}
}

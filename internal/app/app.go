package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"formlo/internal/client"
	"formlo/internal/config"
	"formlo/internal/forms"
	"formlo/internal/logging"
	"formlo/internal/session"
	"formlo/internal/tracker"
	"formlo/internal/view"
)

// App is the explicit application-state container. The session guard, job
// tracker, collection synchronizer, and view router are owned here and
// mutate only through their own methods; the container supplies the signal
// plumbing between them.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Client  *client.Client
	Guard   *session.Guard
	Tracker *tracker.Tracker
	Forms   *forms.Synchronizer
	Router  *view.Router

	cache *forms.Cache
}

// New wires the components: a completed job triggers exactly one
// collection refresh and the one-time dashboard switch; a logout cancels
// polling, clears the forms list, and resets the view.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare data directories: %w", err)
	}

	apiClient, err := client.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	cache, err := forms.OpenCache(cfg.FormsCachePath())
	if err != nil {
		// A broken cache degrades to memory-only; it must not block startup.
		logging.NewComponentLogger(logger, "app").Warn("forms cache unavailable", logging.Error(err))
		cache = nil
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Client:  apiClient,
		Guard:   session.NewGuard(apiClient, logger),
		Tracker: tracker.New(apiClient, tracker.OptionsFromConfig(cfg), logger),
		Forms:   forms.NewSynchronizer(apiClient, cache, logger),
		Router:  view.NewRouter(),
		cache:   cache,
	}

	a.Guard.OnReset(func(ctx context.Context) {
		a.Tracker.Cancel()
		a.Forms.Clear(ctx)
		a.Router.Reset()
	})

	return a, nil
}

// Close releases held resources.
func (a *App) Close() error {
	return a.cache.Close()
}

// Startup runs the session check and, when authenticated, primes the
// collection: cached snapshot first, then a refresh. A refresh failure is
// logged and the stale snapshot kept; startup itself never fails on it.
func (a *App) Startup(ctx context.Context) session.State {
	state := a.Guard.Check(ctx)
	if state != session.StateAuthenticated {
		return state
	}
	a.Forms.LoadCached(ctx)
	if err := a.Forms.Refresh(ctx); err != nil {
		logging.NewComponentLogger(a.Logger, "app").Warn("initial collection refresh failed", logging.Error(err))
	}
	return state
}

// HandleEvent applies a tracker signal to the rest of the application.
// Completion refreshes the collection and switches the view; failure,
// timeout, and stall leave both untouched.
func (a *App) HandleEvent(ctx context.Context, event tracker.Event) {
	if event.Kind != tracker.EventCompleted {
		return
	}
	a.Router.ObserveCompleted(event.Job.ID)
	if err := a.Forms.Refresh(ctx); err != nil {
		logging.NewComponentLogger(a.Logger, "app").Warn("post-completion refresh failed", logging.Error(err))
	}
}

// SubmitAndWait submits a document and consumes tracker state until the
// poll loop stops. progress, when non-nil, is invoked with fresh snapshots
// while the job is in flight. The returned event is the loop's one-shot
// outcome, already applied via HandleEvent.
func (a *App) SubmitAndWait(ctx context.Context, path string, progress func(tracker.Snapshot)) (tracker.Event, error) {
	if _, err := a.Tracker.Submit(ctx, path); err != nil {
		return tracker.Event{}, err
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Tracker.Cancel()
			return tracker.Event{}, ctx.Err()
		case <-ticker.C:
			if progress != nil {
				progress(a.Tracker.Snapshot())
			}
		case event := <-a.Tracker.Events():
			if progress != nil {
				progress(a.Tracker.Snapshot())
			}
			a.HandleEvent(ctx, event)
			return event, nil
		}
	}
}

// Logout delegates to the guard; the reset hook wired in New takes care of
// the dependent state.
func (a *App) Logout(ctx context.Context) error {
	return a.Guard.Logout(ctx)
}

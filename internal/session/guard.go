package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"formlo/internal/api"
	"formlo/internal/logging"
)

// ErrNoSession is returned by accessors when the caller is anonymous.
var ErrNoSession = errors.New("no active session")

// State describes the guard's view of the caller's identity.
type State string

const (
	// StateUnknown holds until the first identity check resolves.
	StateUnknown State = "unknown"
	// StateAuthenticated means a session is established.
	StateAuthenticated State = "authenticated"
	// StateAnonymous is a valid terminal application state, not an error.
	StateAnonymous State = "anonymous"
)

// API is the slice of the backend client the guard depends on.
type API interface {
	Me(ctx context.Context) (*api.Session, error)
	Logout(ctx context.Context) error
	LoginURL() string
}

// Guard gates the application behind the login boundary. The state machine
// is unknown -> {authenticated, anonymous}; logout moves authenticated to
// anonymous; nothing ever returns to unknown.
type Guard struct {
	client API
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	session *api.Session
	onReset []func(context.Context)
}

// NewGuard builds a Guard in the unknown state.
func NewGuard(client API, logger *slog.Logger) *Guard {
	return &Guard{
		client: client,
		logger: logging.NewComponentLogger(logger, "session"),
		state:  StateUnknown,
	}
}

// OnReset registers a hook invoked after a successful logout, before the
// guard reports anonymous. Dependent components clear their state here.
func (g *Guard) OnReset(fn func(context.Context)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onReset = append(g.onReset, fn)
}

// Check queries the identity endpoint once. Any failure, including 401 and
// transport errors, resolves to anonymous: authentication absence is
// routine and must never block startup.
func (g *Guard) Check(ctx context.Context) State {
	session, err := g.client.Me(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.logger.Debug("session check resolved anonymous", logging.Error(err))
		g.state = StateAnonymous
		g.session = nil
		return g.state
	}
	g.state = StateAuthenticated
	g.session = session
	return g.state
}

// Logout terminates the session. On success dependent state is cleared via
// the registered reset hooks; on failure everything is left as it was and
// the error is surfaced as a diagnostic to the operator.
func (g *Guard) Logout(ctx context.Context) error {
	g.mu.Lock()
	if g.state != StateAuthenticated {
		g.mu.Unlock()
		return ErrNoSession
	}
	hooks := append(make([]func(context.Context), 0, len(g.onReset)), g.onReset...)
	g.mu.Unlock()

	if err := g.client.Logout(ctx); err != nil {
		g.logger.Warn("logout failed; session unchanged", logging.Error(err))
		return fmt.Errorf("logout: %w", err)
	}

	for _, hook := range hooks {
		hook(ctx)
	}

	g.mu.Lock()
	g.state = StateAnonymous
	g.session = nil
	g.mu.Unlock()
	g.logger.Info("session cleared")
	return nil
}

// LoginURL returns the external authorization endpoint the user must visit
// in a browser. Login is a navigation, not an API round-trip.
func (g *Guard) LoginURL() string {
	return g.client.LoginURL()
}

// State returns the current guard state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Session returns the active session or ErrNoSession.
func (g *Guard) Session() (*api.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateAuthenticated || g.session == nil {
		return nil, ErrNoSession
	}
	copied := *g.session
	return &copied, nil
}

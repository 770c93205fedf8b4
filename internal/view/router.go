package view

import (
	"sync"

	"formlo/internal/tracker"
)

// Tab is the user-selectable surface.
type Tab string

const (
	TabUpload    Tab = "upload"
	TabDashboard Tab = "dashboard"
)

// Target is the render target the router resolves to.
type Target string

const (
	// TargetLanding is the anonymous view; absence of a session is a
	// valid terminal state, not an error.
	TargetLanding   Target = "landing"
	TargetUpload    Target = "upload"
	TargetDashboard Target = "dashboard"
)

// Router selects the render target as a pure function of session presence,
// the active tab, and tracker phase. The only automatic transition is the
// one-time switch to the dashboard when a job completes.
type Router struct {
	mu        sync.Mutex
	tab       Tab
	completed map[string]struct{}
}

// NewRouter starts on the default upload tab.
func NewRouter() *Router {
	return &Router{tab: TabUpload, completed: make(map[string]struct{})}
}

// Tab returns the active tab.
func (r *Router) Tab() Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tab
}

// Select switches to the given tab explicitly.
func (r *Router) Select(tab Tab) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tab == TabUpload || tab == TabDashboard {
		r.tab = tab
	}
}

// ObserveCompleted switches to the dashboard exactly once per completed
// job. Re-observing the same job id changes nothing.
func (r *Router) ObserveCompleted(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.completed[jobID]; seen {
		return
	}
	r.completed[jobID] = struct{}{}
	r.tab = TabDashboard
}

// Resolve maps application state to a render target. Tracker phase is an
// input so an in-flight job pins the upload view even after the user
// selected the dashboard; everything else renders from the active tab.
func (r *Router) Resolve(sessionPresent bool, phase tracker.Phase) Target {
	if !sessionPresent {
		return TargetLanding
	}
	if phase == tracker.PhaseTracking {
		return TargetUpload
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tab == TabDashboard {
		return TargetDashboard
	}
	return TargetUpload
}

// Reset returns to the default tab and clears the completion latch.
// Called on logout so the next user starts fresh.
func (r *Router) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tab = TabUpload
	r.completed = make(map[string]struct{})
}

package testsupport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"formlo/internal/api"
)

// Backend is a scriptable stand-in for the Formlo API. Job statuses are
// served from per-job sequences so tests can walk a job through its
// lifecycle one poll at a time; request counters back the assertions that
// polling actually stops.
type Backend struct {
	Server *httptest.Server

	mu            sync.Mutex
	session       *api.Session
	sessionCookie string
	loginSession  *api.Session
	uploadJob     *api.ConversionJob
	uploadCode    int
	uploadDetail  string
	jobSeqs       map[string][]api.ConversionJob
	jobHold       map[string]api.ConversionJob
	jobGates      map[string]chan struct{}
	done          chan struct{}
	forms         []api.FormRecord
	formsErr      int
	formsDelay    time.Duration
	deleteCode    int
	dropConns     bool
	counts        map[string]int
}

// StartBackend launches the fake API and registers cleanup.
func StartBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		jobSeqs:  make(map[string][]api.ConversionJob),
		jobHold:  make(map[string]api.ConversionJob),
		jobGates: make(map[string]chan struct{}),
		done:     make(chan struct{}),
		counts:   make(map[string]int),
	}
	b.Server = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.Server.Close)
	t.Cleanup(func() { close(b.done) }) // unblock gated handlers before Close waits on them
	return b
}

// URL is the base URL to hand to the client config.
func (b *Backend) URL() string { return b.Server.URL }

// SetSession makes /auth/me succeed with the given identity.
func (b *Backend) SetSession(s api.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = &s
}

// SetSessionCookie additionally issues a Set-Cookie on /auth/me responses.
func (b *Backend) SetSessionCookie(value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionCookie = value
}

// ScriptLogin makes GET /auth/login complete locally: it establishes the
// given identity, sets the session cookie, and redirects home. Without it
// the login endpoint serves a bare page and issues no session, like a
// deployment that hands off to an external identity provider.
func (b *Backend) ScriptLogin(s api.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginSession = &s
}

// ClearSession makes /auth/me return 401.
func (b *Backend) ClearSession() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = nil
}

// ScriptUpload sets the job returned by POST /upload.
func (b *Backend) ScriptUpload(job api.ConversionJob) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadJob = &job
	b.uploadCode = 0
}

// FailUpload makes POST /upload fail with the given status and detail.
func (b *Backend) FailUpload(code int, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadCode = code
	b.uploadDetail = detail
}

// ScriptJob queues the status responses served for a job id, in order.
// The final entry keeps being served once the sequence is exhausted.
func (b *Backend) ScriptJob(id string, states ...api.ConversionJob) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobSeqs[id] = append(b.jobSeqs[id], states...)
}

// GateJob makes GET /jobs/{id} block until the returned release function
// is called, once per response. Tests use it to inspect the tracker's
// snapshot between individual polls.
func (b *Backend) GateJob(id string) (release func()) {
	ch := make(chan struct{}, 16)
	b.mu.Lock()
	b.jobGates[id] = ch
	b.mu.Unlock()
	return func() { ch <- struct{}{} }
}

// SetForms replaces the collection served by GET /forms.
func (b *Backend) SetForms(records ...api.FormRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forms = append([]api.FormRecord(nil), records...)
}

// DelayForms makes GET /forms sleep before responding, so tests can force
// refreshes to overlap.
func (b *Backend) DelayForms(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.formsDelay = d
}

// FailForms makes GET /forms fail with the given status.
func (b *Backend) FailForms(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.formsErr = code
}

// FailDelete makes DELETE /forms/{id} fail with the given status.
func (b *Backend) FailDelete(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleteCode = code
}

// DropConnections makes every subsequent request fail at the transport
// level by closing the connection before writing a response.
func (b *Backend) DropConnections(drop bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropConns = drop
}

// Requests returns how many requests hit the given path.
func (b *Backend) Requests(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[path]
}

func (b *Backend) handle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.counts[r.URL.Path]++
	drop := b.dropConns
	b.mu.Unlock()

	if drop {
		hj, ok := w.(http.Hijacker)
		if !ok {
			panic("test server does not support hijacking")
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
		return
	}

	switch {
	case r.URL.Path == "/":
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/auth/login":
		b.handleLogin(w, r)
	case r.URL.Path == "/auth/me":
		b.handleMe(w, r)
	case r.URL.Path == "/auth/logout":
		b.handleLogout(w, r)
	case r.URL.Path == "/upload":
		b.handleUpload(w, r)
	case strings.HasPrefix(r.URL.Path, "/jobs/"):
		b.handleJob(w, r)
	case r.URL.Path == "/forms":
		b.handleForms(w, r)
	case strings.HasPrefix(r.URL.Path, "/forms/"):
		b.handleDeleteForm(w, r)
	default:
		writeDetail(w, http.StatusNotFound, "unknown endpoint")
	}
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	s := b.loginSession
	if s != nil {
		b.session = s
	}
	b.mu.Unlock()

	if s == nil {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "session", Value: "local-login", Path: "/"})
	http.Redirect(w, r, "/", http.StatusFound)
}

func (b *Backend) handleMe(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	session := b.session
	cookie := b.sessionCookie
	b.mu.Unlock()

	if session == nil {
		writeDetail(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if cookie != "" {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: cookie, Path: "/"})
	}
	writeJSON(w, http.StatusOK, session)
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	b.mu.Lock()
	b.session = nil
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	b.mu.Lock()
	code, detail, job := b.uploadCode, b.uploadDetail, b.uploadJob
	b.mu.Unlock()

	if code != 0 {
		writeDetail(w, code, detail)
		return
	}
	if job == nil {
		writeDetail(w, http.StatusInternalServerError, "no upload scripted")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (b *Backend) handleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")

	b.mu.Lock()
	gate := b.jobGates[id]
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-b.done:
			return
		}
	}

	b.mu.Lock()
	seq := b.jobSeqs[id]
	var job api.ConversionJob
	found := false
	switch {
	case len(seq) > 1:
		job = seq[0]
		b.jobSeqs[id] = seq[1:]
		found = true
	case len(seq) == 1:
		job = seq[0]
		b.jobHold[id] = job
		b.jobSeqs[id] = nil
		found = true
	default:
		job, found = b.jobHold[id]
	}
	b.mu.Unlock()

	if !found {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (b *Backend) handleForms(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	code := b.formsErr
	delay := b.formsDelay
	records := append([]api.FormRecord(nil), b.forms...)
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if code != 0 {
		writeDetail(w, code, "forms unavailable")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (b *Backend) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	formID := strings.TrimPrefix(r.URL.Path, "/forms/")

	b.mu.Lock()
	code := b.deleteCode
	idx := -1
	for i, record := range b.forms {
		if record.FormID == formID {
			idx = i
			break
		}
	}
	if code == 0 && idx >= 0 {
		b.forms = append(b.forms[:idx], b.forms[idx+1:]...)
	}
	b.mu.Unlock()

	if code != 0 {
		writeDetail(w, code, "delete failed")
		return
	}
	if idx < 0 {
		writeDetail(w, http.StatusNotFound, "Form not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Form deleted successfully"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

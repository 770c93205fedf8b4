package forms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"formlo/internal/api"
	"formlo/internal/logging"
)

// ErrDeleteDeclined means the caller did not confirm a deletion; no
// request was sent and the list is unchanged.
var ErrDeleteDeclined = errors.New("deletion declined")

// ErrUnknownForm means the requested form_id is not in the local list.
// Deletion still round-trips in that case; this is only returned by
// lookups.
var ErrUnknownForm = errors.New("form not found in collection")

// API is the slice of the backend client the synchronizer depends on.
type API interface {
	Forms(ctx context.Context) ([]api.FormRecord, error)
	DeleteForm(ctx context.Context, formID string) error
}

// Synchronizer owns the locally materialized list of generated forms. The
// server is the sole source of truth: the list changes only through a
// successful wholesale refresh, and deletions never remove an item before
// the server confirms. A SQLite cache keeps the last successful snapshot
// across restarts.
type Synchronizer struct {
	client API
	cache  *Cache
	logger *slog.Logger

	mu       sync.Mutex
	records  []api.FormRecord
	inflight chan struct{} // non-nil while a refresh is running
	lastErr  error
}

// NewSynchronizer builds a Synchronizer with an empty list. cache may be
// nil, in which case snapshots are not persisted.
func NewSynchronizer(client API, cache *Cache, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		client: client,
		cache:  cache,
		logger: logging.NewComponentLogger(logger, "forms"),
	}
}

// LoadCached populates the in-memory list from the persisted snapshot.
// Called at startup before the first refresh; errors are non-fatal.
func (s *Synchronizer) LoadCached(ctx context.Context) {
	if s.cache == nil {
		return
	}
	records, err := s.cache.Load(ctx)
	if err != nil {
		s.logger.Warn("load cached forms", logging.Error(err))
		return
	}
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
}

// Refresh fetches the full collection and replaces the local list
// wholesale. Concurrent callers are de-duplicated: a call that arrives
// while a refresh is in flight waits for that refresh and shares its
// outcome instead of racing a second wholesale replace. On failure the
// previous list is kept; stale-but-available beats empty-but-broken.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.inflight != nil {
		wait := s.inflight
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
		err := s.lastErr
		s.mu.Unlock()
		return err
	}
	done := make(chan struct{})
	s.inflight = done
	s.mu.Unlock()

	err := s.refresh(ctx)

	s.mu.Lock()
	s.lastErr = err
	s.inflight = nil
	s.mu.Unlock()
	close(done)
	return err
}

func (s *Synchronizer) refresh(ctx context.Context) error {
	records, err := s.client.Forms(ctx)
	if err != nil {
		s.logger.Warn("collection refresh failed; keeping previous list", logging.Error(err))
		return fmt.Errorf("refresh forms: %w", err)
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Replace(ctx, records); err != nil {
			// Cache persistence is best-effort; the refresh succeeded.
			s.logger.Warn("persist forms snapshot", logging.Error(err))
		}
	}
	s.logger.Debug("collection refreshed", logging.Args(logging.Int("count", len(records)))...)
	return nil
}

// Delete removes a form after interactive confirmation. The confirm guard
// is mandatory: the deletion also destroys the artifact on the external
// form service. Declined confirmation sends nothing. On server success the
// list is reconciled through Refresh; on failure it is left untouched.
func (s *Synchronizer) Delete(ctx context.Context, formID string, confirm func(api.FormRecord) bool) error {
	if confirm == nil {
		return errors.New("confirmation guard is required")
	}

	record, _ := s.Lookup(formID)
	if !confirm(record) {
		return ErrDeleteDeclined
	}

	if err := s.client.DeleteForm(ctx, formID); err != nil {
		s.logger.Warn("delete failed; list unchanged",
			logging.Args(logging.String(logging.FieldFormID, formID), logging.Error(err))...)
		return fmt.Errorf("delete form %s: %w", formID, err)
	}

	s.logger.Info("form deleted", logging.Args(logging.String(logging.FieldFormID, formID))...)
	return s.Refresh(ctx)
}

// Lookup finds a record by form_id in the current list.
func (s *Synchronizer) Lookup(formID string) (api.FormRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.FormID == formID {
			return record, nil
		}
	}
	return api.FormRecord{FormID: formID}, ErrUnknownForm
}

// List returns a copy of the current list, newest first. The server does
// not guarantee ordering; sorting here is a display concern only.
func (s *Synchronizer) List() []api.FormRecord {
	s.mu.Lock()
	records := append([]api.FormRecord(nil), s.records...)
	s.mu.Unlock()

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records
}

// Len returns the current collection size.
func (s *Synchronizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Clear drops the in-memory list and the persisted snapshot. Called on
// logout so the next authenticated user starts clean.
func (s *Synchronizer) Clear(ctx context.Context) {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			s.logger.Warn("clear forms cache", logging.Error(err))
		}
	}
}

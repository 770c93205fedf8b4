package forms_test

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"formlo/internal/api"
	"formlo/internal/client"
	"formlo/internal/config"
	"formlo/internal/forms"
	"formlo/internal/logging"
	"formlo/internal/testsupport"
)

func record(formID, title string, created time.Time) api.FormRecord {
	return api.FormRecord{
		ID:               "rec-" + formID,
		FormID:           formID,
		FormTitle:        title,
		FormURL:          "https://docs.google.com/forms/d/" + formID + "/edit",
		OriginalFilename: title + ".pdf",
		QuestionsCount:   3,
		CreatedAt:        created,
	}
}

func newSynchronizer(t *testing.T, backend *testsupport.Backend) (*forms.Synchronizer, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(backend.URL()))
	c, err := client.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("client.New failed: %v", err)
	}
	cache, err := forms.OpenCache(cfg.FormsCachePath())
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return forms.NewSynchronizer(c, cache, logging.NewNop()), cfg
}

func TestRefreshReplacesWholesale(t *testing.T) {
	backend := testsupport.StartBackend(t)
	now := time.Now().UTC().Truncate(time.Second)
	backend.SetForms(record("f1", "Quiz A", now), record("f2", "Quiz B", now.Add(time.Minute)))

	sync, _ := newSynchronizer(t, backend)
	if err := sync.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if sync.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", sync.Len())
	}

	backend.SetForms(record("f3", "Quiz C", now.Add(2*time.Minute)))
	if err := sync.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	list := sync.List()
	if len(list) != 1 || list[0].FormID != "f3" {
		t.Fatalf("refresh is not wholesale: %#v", list)
	}
}

func TestRefreshIdempotent(t *testing.T) {
	backend := testsupport.StartBackend(t)
	now := time.Now().UTC().Truncate(time.Second)
	backend.SetForms(record("f1", "Quiz A", now))

	sync, _ := newSynchronizer(t, backend)
	if err := sync.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	first := sync.List()
	if err := sync.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	second := sync.List()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("refresh not idempotent:\n%#v\n%#v", first, second)
	}
}

func TestRefreshFailureKeepsPreviousList(t *testing.T) {
	backend := testsupport.StartBackend(t)
	now := time.Now().UTC().Truncate(time.Second)
	backend.SetForms(record("f1", "Quiz A", now))

	sync, _ := newSynchronizer(t, backend)
	if err := sync.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	backend.FailForms(500)
	if err := sync.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if sync.Len() != 1 {
		t.Fatalf("failed refresh corrupted list: %d records", sync.Len())
	}
}

func TestConcurrentRefreshesDeduplicated(t *testing.T) {
	backend := testsupport.StartBackend(t)
	now := time.Now().UTC().Truncate(time.Second)
	backend.SetForms(record("f1", "Quiz A", now))
	backend.DelayForms(50 * time.Millisecond)

	syncr, _ := newSynchronizer(t, backend)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = syncr.Refresh(context.Background())
		}()
	}
	wg.Wait()

	// At least one but far fewer than eight fetches: joiners share the
	// in-flight refresh.
	if got := backend.Requests("/forms"); got < 1 || got >= 8 {
		t.Fatalf("expected de-duplicated refreshes, saw %d fetches", got)
	}
	if syncr.Len() != 1 {
		t.Fatalf("unexpected list size: %d", syncr.Len())
	}
}

func TestDeleteDeclinedSendsNothing(t *testing.T) {
	backend := testsupport.StartBackend(t)
	now := time.Now().UTC().Truncate(time.Second)
	backend.SetForms(record("f1", "Quiz A", now))

	sync, _ := newSynchronizer(t, backend)
	if err := sync.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	err := sync.Delete(context.Background(), "f1", func(api.FormRecord) bool { return false })
	if err != forms.ErrDeleteDeclined {
		t.Fatalf("expected ErrDeleteDeclined, got %v", err)
	}
	if got := backend.Requests("/forms/f1"); got != 0 {
		t.Fatalf("declined delete still sent %d requests", got)
	}
	if sync.Len() != 1 {
		t.Fatal("declined delete changed the list")
	}
}

func TestDeleteSuccessTriggersRefresh(t *testing.T) {
	backend := testsupport.StartBackend(t)
	now := time.Now().UTC().Truncate(time.Second)
	backend.SetForms(record("f1", "Quiz A", now), record("f2", "Quiz B", now))

	sync, _ := newSynchronizer(t, backend)
	if err := sync.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	var confirmed api.FormRecord
	err := sync.Delete(context.Background(), "f1", func(r api.FormRecord) bool {
		confirmed = r
		return true
	})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if confirmed.FormTitle != "Quiz A" {
		t.Fatalf("confirm guard got wrong record: %#v", confirmed)
	}
	list := sync.List()
	if len(list) != 1 || list[0].FormID != "f2" {
		t.Fatalf("list not reconciled after delete: %#v", list)
	}
}

func TestDeleteFailureLeavesListUntouched(t *testing.T) {
	backend := testsupport.StartBackend(t)
	now := time.Now().UTC().Truncate(time.Second)
	backend.SetForms(record("f1", "Quiz A", now))

	sync, _ := newSynchronizer(t, backend)
	if err := sync.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	backend.FailDelete(500)
	if err := sync.Delete(context.Background(), "f1", func(api.FormRecord) bool { return true }); err == nil {
		t.Fatal("expected delete error")
	}
	if sync.Len() != 1 {
		t.Fatal("failed delete changed the list")
	}
}

func TestDeleteUnknownFormFollowsFailurePath(t *testing.T) {
	backend := testsupport.StartBackend(t)
	now := time.Now().UTC().Truncate(time.Second)
	backend.SetForms(record("f1", "Quiz A", now))

	sync, _ := newSynchronizer(t, backend)
	if err := sync.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	err := sync.Delete(context.Background(), "ghost", func(api.FormRecord) bool { return true })
	if err == nil {
		t.Fatal("expected error for unknown form")
	}
	if !client.IsNotFound(err) {
		t.Fatalf("expected 404 from backend, got %v", err)
	}
	if sync.Len() != 1 {
		t.Fatal("unknown-form delete corrupted the list")
	}
}

func TestCachedSnapshotSurvivesRestart(t *testing.T) {
	backend := testsupport.StartBackend(t)
	now := time.Now().UTC().Truncate(time.Second)
	backend.SetForms(record("f1", "Quiz A", now))

	syncr, cfg := newSynchronizer(t, backend)
	if err := syncr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// A second synchronizer over the same cache sees the snapshot without
	// touching the network.
	cache, err := forms.OpenCache(cfg.FormsCachePath())
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	defer cache.Close()

	restarted := forms.NewSynchronizer(nil, cache, logging.NewNop())
	restarted.LoadCached(context.Background())
	list := restarted.List()
	if len(list) != 1 || list[0].FormID != "f1" || list[0].FormTitle != "Quiz A" {
		t.Fatalf("cached snapshot lost: %#v", list)
	}
}

func TestClearEmptiesListAndCache(t *testing.T) {
	backend := testsupport.StartBackend(t)
	now := time.Now().UTC().Truncate(time.Second)
	backend.SetForms(record("f1", "Quiz A", now))

	syncr, cfg := newSynchronizer(t, backend)
	if err := syncr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	syncr.Clear(context.Background())
	if syncr.Len() != 0 {
		t.Fatal("Clear left records in memory")
	}

	cache, err := forms.OpenCache(cfg.FormsCachePath())
	if err != nil {
		t.Fatalf("OpenCache failed: %v", err)
	}
	defer cache.Close()
	records, err := cache.Load(context.Background())
	if err != nil {
		t.Fatalf("cache.Load failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("Clear left records in cache: %#v", records)
	}
}

package store

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"animetracker/internal/models"

	"github.com/sirupsen/logrus"
)

// --- mocks ---

type mockCatalog struct {
	listFn   func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error)
	createFn func(ctx context.Context, draft models.Draft) (*models.AnimeEntry, error)
	updateFn func(ctx context.Context, id string, draft models.Draft) (*models.AnimeEntry, error)
	removeFn func(ctx context.Context, id string) error
	uploadFn func(ctx context.Context, data []byte, fileName, mimeType string) (string, error)

	mu          sync.Mutex
	listFilters []models.FilterSpec
}

func (m *mockCatalog) List(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
	m.mu.Lock()
	m.listFilters = append(m.listFilters, filter)
	m.mu.Unlock()
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return &models.ListResult{}, nil
}

func (m *mockCatalog) Create(ctx context.Context, draft models.Draft) (*models.AnimeEntry, error) {
	if m.createFn != nil {
		return m.createFn(ctx, draft)
	}
	return &models.AnimeEntry{ID: "1"}, nil
}

func (m *mockCatalog) Update(ctx context.Context, id string, draft models.Draft) (*models.AnimeEntry, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, draft)
	}
	return &models.AnimeEntry{ID: id}, nil
}

func (m *mockCatalog) Remove(ctx context.Context, id string) error {
	if m.removeFn != nil {
		return m.removeFn(ctx, id)
	}
	return nil
}

func (m *mockCatalog) UploadImage(ctx context.Context, data []byte, fileName, mimeType string) (string, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, data, fileName, mimeType)
	}
	return "", nil
}

func (m *mockCatalog) filters() []models.FilterSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.FilterSpec, len(m.listFilters))
	copy(out, m.listFilters)
	return out
}

type recordedRefreshes struct {
	mu      sync.Mutex
	results []string
}

func (r *recordedRefreshes) RecordRefresh(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func newTestStore(cat Catalog) *Store {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(Config{Catalog: cat, Logger: logger})
}

func page(titles ...string) *models.ListResult {
	items := make([]models.AnimeEntry, len(titles))
	for i, title := range titles {
		items[i] = models.AnimeEntry{ID: title, Title: title, Status: models.StatusPlanned, Genres: []string{}}
	}
	return &models.ListResult{
		Items: items,
		Pagination: models.Pagination{
			Page:       1,
			PageSize:   10,
			TotalCount: len(items),
			TotalPages: models.TotalPagesFor(len(items), 10),
		},
	}
}

func titles(items []models.AnimeEntry) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- Refresh ---

func TestNew_InitialState(t *testing.T) {
	s := newTestStore(&mockCatalog{})
	st := s.Snapshot()

	if st.IsLoading || st.LastError != "" || len(st.Items) != 0 {
		t.Errorf("unexpected initial state: %+v", st)
	}
	if st.Pagination.Page != 1 || st.Pagination.PageSize != models.DefaultPageSize {
		t.Errorf("initial pagination = %+v", st.Pagination)
	}
}

func TestRefresh_ReplacesItemsAndPagination(t *testing.T) {
	cat := &mockCatalog{
		listFn: func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
			res := page("Akira", "Berserk")
			res.Pagination = models.Pagination{Page: 2, PageSize: 2, TotalCount: 5, TotalPages: 3}
			return res, nil
		},
	}
	s := newTestStore(cat)

	if err := s.Refresh(context.Background(), models.FilterSpec{Page: 2, PageSize: 2}); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	st := s.Snapshot()
	if st.IsLoading {
		t.Error("IsLoading should be false after refresh")
	}
	if !equalStrings(titles(st.Items), []string{"Akira", "Berserk"}) {
		t.Errorf("items = %v", titles(st.Items))
	}
	want := models.Pagination{Page: 2, PageSize: 2, TotalCount: 5, TotalPages: 3}
	if st.Pagination != want {
		t.Errorf("pagination = %+v, want %+v", st.Pagination, want)
	}
}

func TestRefresh_FailureClearsItems(t *testing.T) {
	fail := false
	cat := &mockCatalog{
		listFn: func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
			if fail {
				return nil, errors.New("HTTP status 500")
			}
			return page("Akira", "Berserk"), nil
		},
	}
	s := newTestStore(cat)

	if err := s.Refresh(context.Background(), models.DefaultFilter()); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if len(s.Snapshot().Items) != 2 {
		t.Fatal("expected items after first refresh")
	}

	fail = true
	if err := s.Refresh(context.Background(), models.DefaultFilter()); err == nil {
		t.Fatal("expected refresh error")
	}

	st := s.Snapshot()
	if len(st.Items) != 0 {
		t.Errorf("items = %v, want empty after failed refresh", titles(st.Items))
	}
	if st.LastError != "HTTP status 500" {
		t.Errorf("LastError = %q", st.LastError)
	}
	if st.IsLoading {
		t.Error("IsLoading should be false after failed refresh")
	}
}

func TestRefresh_ClearsPreviousErrorOnStart(t *testing.T) {
	calls := 0
	cat := &mockCatalog{
		listFn: func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("boom")
			}
			return page("Akira"), nil
		},
	}
	s := newTestStore(cat)

	s.Refresh(context.Background(), models.DefaultFilter())
	if err := s.Refresh(context.Background(), models.DefaultFilter()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if st := s.Snapshot(); st.LastError != "" || len(st.Items) != 1 {
		t.Errorf("state after recovery = %+v", st)
	}
}

func TestRefresh_OutOfOrderResponseIsDiscarded(t *testing.T) {
	startedA := make(chan struct{})
	releaseA := make(chan struct{})

	cat := &mockCatalog{
		listFn: func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
			if filter.Search == "A" {
				close(startedA)
				<-releaseA
				return page("result of A"), nil
			}
			return page("result of B"), nil
		},
	}
	rec := &recordedRefreshes{}
	s := newTestStore(cat)
	s.metrics = rec

	errA := make(chan error, 1)
	go func() {
		errA <- s.Refresh(context.Background(), models.FilterSpec{Search: "A"})
	}()
	<-startedA

	if err := s.Refresh(context.Background(), models.FilterSpec{Search: "B"}); err != nil {
		t.Fatalf("refresh B: %v", err)
	}
	close(releaseA)

	select {
	case err := <-errA:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("refresh A error = %v, want ErrSuperseded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("refresh A did not return")
	}

	st := s.Snapshot()
	if !equalStrings(titles(st.Items), []string{"result of B"}) {
		t.Errorf("items = %v, want B's result", titles(st.Items))
	}
	if st.IsLoading {
		t.Error("IsLoading should be false once the newest refresh completed")
	}
	if s.Filter().Search != "B" {
		t.Errorf("last filter = %+v, want B", s.Filter())
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !equalStrings(rec.results, []string{"applied", "superseded"}) {
		t.Errorf("recorded refreshes = %v", rec.results)
	}
}

func TestRefresh_EarlierResponseDoesNotEndLoading(t *testing.T) {
	startedB := make(chan struct{})
	releaseB := make(chan struct{})
	releaseA := make(chan struct{})

	cat := &mockCatalog{
		listFn: func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
			if filter.Search == "A" {
				<-releaseA
				return nil, errors.New("A failed")
			}
			close(startedB)
			<-releaseB
			return page("result of B"), nil
		},
	}
	s := newTestStore(cat)

	errA := make(chan error, 1)
	go func() { errA <- s.Refresh(context.Background(), models.FilterSpec{Search: "A"}) }()

	// wait until A has been issued before issuing B
	for s.Filter().Search != "A" {
		time.Sleep(time.Millisecond)
	}

	errB := make(chan error, 1)
	go func() { errB <- s.Refresh(context.Background(), models.FilterSpec{Search: "B"}) }()
	<-startedB

	close(releaseA)
	if err := <-errA; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("refresh A error = %v, want ErrSuperseded", err)
	}

	st := s.Snapshot()
	if !st.IsLoading {
		t.Error("IsLoading should stay true while the newest refresh is in flight")
	}
	if st.LastError != "" {
		t.Errorf("superseded failure leaked into LastError: %q", st.LastError)
	}

	close(releaseB)
	if err := <-errB; err != nil {
		t.Fatalf("refresh B: %v", err)
	}
	if st := s.Snapshot(); st.IsLoading || !equalStrings(titles(st.Items), []string{"result of B"}) {
		t.Errorf("final state = %+v", st)
	}
}

func TestRefresh_NormalizesFilter(t *testing.T) {
	cat := &mockCatalog{}
	s := newTestStore(cat)

	s.Refresh(context.Background(), models.FilterSpec{Page: 0, PageSize: 0})

	got := cat.filters()
	if len(got) != 1 || got[0].Page != 1 || got[0].PageSize != models.DefaultPageSize {
		t.Errorf("filters sent = %+v", got)
	}
}

func TestSearch_ResetsPageAndKeepsSort(t *testing.T) {
	cat := &mockCatalog{}
	s := newTestStore(cat)

	s.Refresh(context.Background(), models.FilterSpec{SortBy: models.SortByRating, SortDescending: true, Page: 4, PageSize: 20})
	s.Search(context.Background(), "eva")

	got := cat.filters()
	last := got[len(got)-1]
	want := models.FilterSpec{Search: "eva", SortBy: models.SortByRating, SortDescending: true, Page: 1, PageSize: 20}
	if last != want {
		t.Errorf("search filter = %+v, want %+v", last, want)
	}
}

// --- mutations ---

func TestCreate_RefreshesWithLastFilter(t *testing.T) {
	created := false
	cat := &mockCatalog{
		listFn: func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
			if created {
				return page("Akira", "X"), nil
			}
			return page("Akira"), nil
		},
		createFn: func(ctx context.Context, draft models.Draft) (*models.AnimeEntry, error) {
			created = true
			return &models.AnimeEntry{ID: "X", Title: draft.Title}, nil
		},
	}
	s := newTestStore(cat)

	filter := models.FilterSpec{Search: "a", SortBy: models.SortByStatus, Page: 2, PageSize: 5}
	s.Refresh(context.Background(), filter)

	entry, err := s.Create(context.Background(), models.Draft{Title: "X", Status: models.StatusWatching})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if entry.ID != "X" {
		t.Errorf("entry = %+v", entry)
	}

	got := cat.filters()
	if len(got) != 2 || got[1] != filter {
		t.Errorf("refresh filters = %+v, want second call with %+v", got, filter)
	}
	if !equalStrings(titles(s.Snapshot().Items), []string{"Akira", "X"}) {
		t.Errorf("items = %v", titles(s.Snapshot().Items))
	}
}

func TestCreate_FailureKeepsListAndSignalsCaller(t *testing.T) {
	createErr := errors.New("Validation errors: The Title field is required.")
	cat := &mockCatalog{
		listFn: func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
			return page("Akira"), nil
		},
		createFn: func(ctx context.Context, draft models.Draft) (*models.AnimeEntry, error) {
			return nil, createErr
		},
	}
	s := newTestStore(cat)
	s.Refresh(context.Background(), models.DefaultFilter())

	_, err := s.Create(context.Background(), models.Draft{})
	if !errors.Is(err, createErr) {
		t.Fatalf("error = %v, want %v", err, createErr)
	}

	st := s.Snapshot()
	if !equalStrings(titles(st.Items), []string{"Akira"}) {
		t.Errorf("items = %v, want untouched list", titles(st.Items))
	}
	if st.LastError != "" {
		t.Errorf("LastError = %q, mutation failures must not use the list error slot", st.LastError)
	}
	if st.MutationError != createErr.Error() {
		t.Errorf("MutationError = %q", st.MutationError)
	}
	if n := len(cat.filters()); n != 1 {
		t.Errorf("list called %d times, want no refresh after failed create", n)
	}
}

func TestCreate_FollowUpRefreshFailureIsFailClosed(t *testing.T) {
	calls := 0
	cat := &mockCatalog{
		listFn: func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("list down")
			}
			return page("Akira"), nil
		},
	}
	s := newTestStore(cat)
	s.Refresh(context.Background(), models.DefaultFilter())

	if _, err := s.Create(context.Background(), models.Draft{Title: "X"}); err != nil {
		t.Fatalf("Create should succeed even if the follow-up refresh fails: %v", err)
	}
	st := s.Snapshot()
	if len(st.Items) != 0 || st.LastError != "list down" {
		t.Errorf("state = %+v, want empty list with LastError", st)
	}
}

func TestMutation_ClearsPreviousMutationError(t *testing.T) {
	fail := true
	cat := &mockCatalog{
		removeFn: func(ctx context.Context, id string) error {
			if fail {
				return errors.New("HTTP status 500")
			}
			return nil
		},
	}
	s := newTestStore(cat)

	if err := s.Remove(context.Background(), "1"); err == nil {
		t.Fatal("expected remove error")
	}
	if s.Snapshot().MutationError == "" {
		t.Fatal("MutationError should be set")
	}

	fail = false
	if err := s.Remove(context.Background(), "1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if msg := s.Snapshot().MutationError; msg != "" {
		t.Errorf("MutationError = %q, want cleared", msg)
	}
}

func TestUpdate_PassesFullDraftAndRefreshes(t *testing.T) {
	var gotID string
	var gotDraft models.Draft
	cat := &mockCatalog{
		updateFn: func(ctx context.Context, id string, draft models.Draft) (*models.AnimeEntry, error) {
			gotID, gotDraft = id, draft
			return &models.AnimeEntry{ID: id, Title: draft.Title, Genres: draft.Genres}, nil
		},
	}
	s := newTestStore(cat)

	draft := models.Draft{Title: "Y", Status: models.StatusCompleted, Rating: 9, Genres: []string{}}
	if _, err := s.Update(context.Background(), "3", draft); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if gotID != "3" || gotDraft.Title != "Y" || gotDraft.Genres == nil || len(gotDraft.Genres) != 0 {
		t.Errorf("update called with %q %+v", gotID, gotDraft)
	}
	if n := len(cat.filters()); n != 1 {
		t.Errorf("list called %d times, want one refresh after update", n)
	}
}

func TestUpdate_FailureSignalsCaller(t *testing.T) {
	cat := &mockCatalog{
		updateFn: func(ctx context.Context, id string, draft models.Draft) (*models.AnimeEntry, error) {
			return nil, errors.New("anime not found")
		},
	}
	s := newTestStore(cat)

	if _, err := s.Update(context.Background(), "404", models.Draft{}); err == nil {
		t.Fatal("expected update error")
	}
	if st := s.Snapshot(); st.MutationError != "anime not found" || st.LastError != "" {
		t.Errorf("state = %+v", st)
	}
}

func TestRemove_Refreshes(t *testing.T) {
	removed := ""
	cat := &mockCatalog{
		removeFn: func(ctx context.Context, id string) error {
			removed = id
			return nil
		},
	}
	s := newTestStore(cat)

	if err := s.Remove(context.Background(), "5"); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if removed != "5" {
		t.Errorf("removed = %q", removed)
	}
	if n := len(cat.filters()); n != 1 {
		t.Errorf("list called %d times, want 1", n)
	}
}

func TestUploadImage_ReturnsReferenceWithoutTouchingItems(t *testing.T) {
	cat := &mockCatalog{
		listFn: func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
			return page("Akira"), nil
		},
		uploadFn: func(ctx context.Context, data []byte, fileName, mimeType string) (string, error) {
			if fileName != "cover.jpg" || mimeType != "image/jpeg" || string(data) != "JPEG" {
				t.Errorf("upload called with %q %q %q", data, fileName, mimeType)
			}
			return "/images/cover.jpg", nil
		},
	}
	s := newTestStore(cat)
	s.Refresh(context.Background(), models.DefaultFilter())

	ref, err := s.UploadImage(context.Background(), models.ImageFile{Name: "cover.jpg", MIMEType: "image/jpeg", Data: []byte("JPEG")})
	if err != nil {
		t.Fatalf("UploadImage returned error: %v", err)
	}
	if ref != "/images/cover.jpg" {
		t.Errorf("ref = %q", ref)
	}
	if n := len(cat.filters()); n != 1 {
		t.Errorf("upload should not refresh; list called %d times", n)
	}
	if !equalStrings(titles(s.Snapshot().Items), []string{"Akira"}) {
		t.Error("upload changed the item list")
	}
}

func TestUploadImage_Failure(t *testing.T) {
	cat := &mockCatalog{
		uploadFn: func(ctx context.Context, data []byte, fileName, mimeType string) (string, error) {
			return "", errors.New("unexpected response format from server")
		},
	}
	s := newTestStore(cat)

	if _, err := s.UploadImage(context.Background(), models.ImageFile{Name: "a.png"}); err == nil {
		t.Fatal("expected upload error")
	}
	if s.Snapshot().MutationError == "" {
		t.Error("MutationError should be set after failed upload")
	}
}

// --- observation ---

func TestSubscribe_ReceivesTransitions(t *testing.T) {
	cat := &mockCatalog{
		listFn: func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
			return page("Akira"), nil
		},
	}
	s := newTestStore(cat)

	var seen []State
	unsubscribe := s.Subscribe(func(st State) { seen = append(seen, st) })

	s.Refresh(context.Background(), models.DefaultFilter())

	if len(seen) != 2 {
		t.Fatalf("got %d notifications, want 2", len(seen))
	}
	if !seen[0].IsLoading || len(seen[0].Items) != 0 {
		t.Errorf("first notification = %+v, want loading", seen[0])
	}
	if seen[1].IsLoading || len(seen[1].Items) != 1 {
		t.Errorf("second notification = %+v, want loaded", seen[1])
	}

	unsubscribe()
	s.Refresh(context.Background(), models.DefaultFilter())
	if len(seen) != 2 {
		t.Errorf("notifications after unsubscribe: %d", len(seen))
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	cat := &mockCatalog{
		listFn: func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
			res := page("Akira")
			res.Items[0].Genres = []string{"Drama"}
			return res, nil
		},
	}
	s := newTestStore(cat)
	s.Refresh(context.Background(), models.DefaultFilter())

	st := s.Snapshot()
	st.Items[0].Title = "mutated"
	st.Items[0].Genres = append(st.Items[0].Genres[:0], "mutated")

	got := s.Snapshot().Items[0]
	if got.Title != "Akira" {
		t.Error("mutating a snapshot title changed the store")
	}
	if len(got.Genres) != 1 || got.Genres[0] != "Drama" {
		t.Errorf("genres = %v, mutating a snapshot changed the store", got.Genres)
	}
}

func TestSubscribe_StaleSnapshotNeverOvertakesNewer(t *testing.T) {
	releaseD := make(chan struct{})
	cat := &mockCatalog{
		listFn: func(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error) {
			if filter.Search == "D" {
				<-releaseD
				return page("result of D"), nil
			}
			return page("result of B"), nil
		},
	}
	s := newTestStore(cat)

	var (
		mu     sync.Mutex
		last   State
		paused atomic.Bool
	)
	heldB := make(chan struct{})
	s.Subscribe(func(st State) {
		loadedB := !st.IsLoading && len(st.Items) == 1 && st.Items[0].Title == "result of B"
		if loadedB && paused.CompareAndSwap(false, true) {
			close(heldB)
			// hold B's result until D has started loading
			deadline := time.Now().Add(2 * time.Second)
			for !s.Snapshot().IsLoading && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}
		}
		mu.Lock()
		last = st
		mu.Unlock()
	})
	lastState := func() State {
		mu.Lock()
		defer mu.Unlock()
		return last
	}

	errB := make(chan error, 1)
	go func() { errB <- s.Refresh(context.Background(), models.FilterSpec{Search: "B"}) }()
	<-heldB

	errD := make(chan error, 1)
	go func() { errD <- s.Refresh(context.Background(), models.FilterSpec{Search: "D"}) }()

	if err := <-errB; err != nil {
		t.Fatalf("refresh B: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !lastState().IsLoading {
		if time.Now().After(deadline) {
			st := lastState()
			t.Fatalf("last delivered state = loading %v items %v, want D's loading state", st.IsLoading, titles(st.Items))
		}
		time.Sleep(time.Millisecond)
	}

	close(releaseD)
	if err := <-errD; err != nil {
		t.Fatalf("refresh D: %v", err)
	}
	if st := lastState(); st.IsLoading || !equalStrings(titles(st.Items), []string{"result of D"}) {
		t.Errorf("final delivered state = loading %v items %v", st.IsLoading, titles(st.Items))
	}
}

// Package store holds the collection view-state shown to the user and
// reconciles it with the remote catalog after every intent.
//
// The store never patches its item list locally. Every successful mutation
// is followed by a full refresh with the last-known filter, so the list is
// always a page the server actually returned. A refresh failure clears the
// list, so an error is never shown next to stale data.
package store

import (
	"context"
	"errors"
	"sync"

	"animetracker/internal/models"

	"github.com/sirupsen/logrus"
)

// ErrSuperseded is returned by Refresh when a newer refresh was issued
// before this one completed. Its result was discarded.
var ErrSuperseded = errors.New("refresh superseded by a newer request")

// Catalog is the subset of the catalog client the store depends on.
type Catalog interface {
	List(ctx context.Context, filter models.FilterSpec) (*models.ListResult, error)
	Create(ctx context.Context, draft models.Draft) (*models.AnimeEntry, error)
	Update(ctx context.Context, id string, draft models.Draft) (*models.AnimeEntry, error)
	Remove(ctx context.Context, id string) error
	UploadImage(ctx context.Context, data []byte, fileName, mimeType string) (string, error)
}

// RefreshRecorder receives the result of every refresh cycle.
type RefreshRecorder interface {
	RecordRefresh(result string)
}

// State is a snapshot of the view-state.
type State struct {
	Items     []models.AnimeEntry
	IsLoading bool
	// LastError is the message of the failed refresh that emptied Items.
	LastError string
	// MutationError is the message of the last failed create, update,
	// remove or upload. It never affects Items.
	MutationError string
	Pagination    models.Pagination
}

func (s State) HasError() bool {
	return s.LastError != ""
}

type Store struct {
	catalog Catalog
	logger  *logrus.Logger
	metrics RefreshRecorder

	mu         sync.Mutex
	seq        uint64
	version    uint64
	state      State
	lastFilter models.FilterSpec

	listenersMu sync.Mutex
	listeners   map[int]func(State)
	nextID      int

	// deliverMu serializes notifications; delivered is the version of the
	// last snapshot handed to listeners.
	deliverMu sync.Mutex
	delivered uint64
}

type Config struct {
	Catalog Catalog
	Logger  *logrus.Logger
	Metrics RefreshRecorder
	// InitialFilter is used by mutations issued before the first Refresh.
	InitialFilter models.FilterSpec
}

func New(config Config) *Store {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	filter := config.InitialFilter
	if filter == (models.FilterSpec{}) {
		filter = models.DefaultFilter()
	}
	filter = filter.Normalized()

	return &Store{
		catalog:    config.Catalog,
		logger:     config.Logger,
		metrics:    config.Metrics,
		lastFilter: filter,
		state: State{
			Items: []models.AnimeEntry{},
			Pagination: models.Pagination{
				Page:     filter.Page,
				PageSize: filter.PageSize,
			},
		},
		listeners: make(map[int]func(State)),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	st := s.state
	st.Items = make([]models.AnimeEntry, len(s.state.Items))
	for i, e := range s.state.Items {
		st.Items[i] = cloneEntry(e)
	}
	return st
}

// publishLocked snapshots the state for listeners and stamps it with a new
// version. Callers hold s.mu.
func (s *Store) publishLocked() (State, uint64) {
	s.version++
	return s.snapshotLocked(), s.version
}

func cloneEntry(e models.AnimeEntry) models.AnimeEntry {
	if e.Genres != nil {
		genres := make([]string, len(e.Genres))
		copy(genres, e.Genres)
		e.Genres = genres
	}
	return e
}

// Filter returns the filter of the most recently issued refresh.
func (s *Store) Filter() models.FilterSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFilter
}

// Subscribe registers fn to be called with a snapshot after every state
// transition. Calls are serialized and arrive in transition order; a
// snapshot that was overtaken by a newer one is skipped. fn runs on the
// goroutine that caused the transition, must not block and must not call
// Refresh or a mutation. The returned func removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) notify(st State, version uint64) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version

	s.listenersMu.Lock()
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// Refresh reloads the list for filter. Only the most recently issued
// refresh may change the state; an older one that completes later returns
// ErrSuperseded and leaves the state alone.
func (s *Store) Refresh(ctx context.Context, filter models.FilterSpec) error {
	filter = filter.Normalized()

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.lastFilter = filter
	s.state.IsLoading = true
	s.state.LastError = ""
	st, ver := s.publishLocked()
	s.mu.Unlock()
	s.notify(st, ver)

	log := s.logger.WithFields(logrus.Fields{
		"seq":       seq,
		"search":    filter.Search,
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
	log.Debug("Refreshing anime list...")

	result, err := s.catalog.List(ctx, filter)

	s.mu.Lock()
	if seq != s.seq {
		latest := s.seq
		s.mu.Unlock()
		log.WithField("latest_seq", latest).Debug("Discarding superseded refresh result")
		s.record("superseded")
		return ErrSuperseded
	}

	if err != nil {
		s.state.Items = []models.AnimeEntry{}
		s.state.LastError = err.Error()
		s.state.IsLoading = false
		st, ver = s.publishLocked()
		s.mu.Unlock()

		log.WithError(err).Warn("Failed to refresh anime list")
		s.record("failed")
		s.notify(st, ver)
		return err
	}

	items := result.Items
	if items == nil {
		items = []models.AnimeEntry{}
	}
	s.state.Items = items
	s.state.Pagination = result.Pagination
	s.state.IsLoading = false
	st, ver = s.publishLocked()
	s.mu.Unlock()

	log.WithFields(logrus.Fields{
		"items":       len(items),
		"total_count": result.Pagination.TotalCount,
	}).Debug("Anime list refreshed")
	s.record("applied")
	s.notify(st, ver)
	return nil
}

// Search refreshes with term from the first page, keeping the rest of the
// last-known filter.
func (s *Store) Search(ctx context.Context, term string) error {
	filter := s.Filter()
	filter.Search = term
	filter.Page = 1
	return s.Refresh(ctx, filter)
}

// Create stores draft remotely and reloads the list with the last-known
// filter. The created entry is not inserted locally.
func (s *Store) Create(ctx context.Context, draft models.Draft) (*models.AnimeEntry, error) {
	s.beginMutation()

	entry, err := s.catalog.Create(ctx, draft)
	if err != nil {
		s.failMutation("create", err)
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"id":    entry.ID,
		"title": entry.Title,
	}).Info("Anime created")

	s.refreshAfterMutation(ctx)
	return entry, nil
}

// Update replaces entry id with draft and reloads the list.
func (s *Store) Update(ctx context.Context, id string, draft models.Draft) (*models.AnimeEntry, error) {
	s.beginMutation()

	entry, err := s.catalog.Update(ctx, id, draft)
	if err != nil {
		s.failMutation("update", err)
		return nil, err
	}

	s.logger.WithField("id", id).Info("Anime updated")

	s.refreshAfterMutation(ctx)
	return entry, nil
}

// Remove deletes entry id and reloads the list.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.beginMutation()

	if err := s.catalog.Remove(ctx, id); err != nil {
		s.failMutation("remove", err)
		return err
	}

	s.logger.WithField("id", id).Info("Anime removed")

	s.refreshAfterMutation(ctx)
	return nil
}

// UploadImage uploads file and returns the image reference for use in a
// draft. The item list is not touched.
func (s *Store) UploadImage(ctx context.Context, file models.ImageFile) (string, error) {
	s.beginMutation()

	ref, err := s.catalog.UploadImage(ctx, file.Data, file.Name, file.MIMEType)
	if err != nil {
		s.failMutation("upload", err)
		return "", err
	}

	s.logger.WithFields(logrus.Fields{
		"file_name": file.Name,
		"image":     ref,
	}).Info("Image uploaded")
	return ref, nil
}

func (s *Store) beginMutation() {
	s.mu.Lock()
	if s.state.MutationError == "" {
		s.mu.Unlock()
		return
	}
	s.state.MutationError = ""
	st, ver := s.publishLocked()
	s.mu.Unlock()
	s.notify(st, ver)
}

func (s *Store) failMutation(op string, err error) {
	s.mu.Lock()
	s.state.MutationError = err.Error()
	st, ver := s.publishLocked()
	s.mu.Unlock()

	s.logger.WithField("op", op).WithError(err).Warn("Anime mutation failed")
	s.notify(st, ver)
}

// refreshAfterMutation reloads with the last-known filter. Its failure is
// reported through LastError, not to the mutation's caller.
func (s *Store) refreshAfterMutation(ctx context.Context) {
	if err := s.Refresh(ctx, s.Filter()); err != nil && !errors.Is(err, ErrSuperseded) {
		s.logger.WithError(err).Debug("Refresh after mutation failed")
	}
}

func (s *Store) record(result string) {
	if s.metrics != nil {
		s.metrics.RecordRefresh(result)
	}
}

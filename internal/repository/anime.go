package repository

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"animetracker/internal/models"
)

var ErrNotFound = errors.New("anime not found")

// AnimeRepository stores catalog entries for the reference server.
// List returns one page of matches and the total number of matches.
type AnimeRepository interface {
	List(ctx context.Context, filter models.FilterSpec) ([]models.AnimeEntry, int, error)
	GetByID(ctx context.Context, id string) (*models.AnimeEntry, error)
	Create(ctx context.Context, draft models.Draft) (*models.AnimeEntry, error)
	Update(ctx context.Context, id string, draft models.Draft) (*models.AnimeEntry, error)
	Delete(ctx context.Context, id string) error
}

type memoryAnimeRepository struct {
	mu      sync.RWMutex
	entries map[int64]models.AnimeEntry
	nextID  int64
	now     func() time.Time
}

func NewMemoryAnimeRepository() AnimeRepository {
	return &memoryAnimeRepository{
		entries: make(map[int64]models.AnimeEntry),
		nextID:  1,
		now:     time.Now,
	}
}

func (r *memoryAnimeRepository) List(ctx context.Context, filter models.FilterSpec) ([]models.AnimeEntry, int, error) {
	filter = filter.Normalized()
	term := strings.ToLower(filter.Search)

	r.mu.RLock()
	matches := make([]models.AnimeEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if term == "" || strings.Contains(strings.ToLower(e.Title), term) {
			matches = append(matches, cloneEntry(e))
		}
	}
	r.mu.RUnlock()

	sortEntries(matches, filter.SortBy, filter.SortDescending)

	total := len(matches)
	start, ok := pageStart(filter, total)
	if !ok {
		return []models.AnimeEntry{}, total, nil
	}
	end := total
	if filter.PageSize < total-start {
		end = start + filter.PageSize
	}
	return matches[start:end], total, nil
}

func (r *memoryAnimeRepository) GetByID(ctx context.Context, id string) (*models.AnimeEntry, error) {
	key, ok := parseID(id)
	if !ok {
		return nil, ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	e = cloneEntry(e)
	return &e, nil
}

func (r *memoryAnimeRepository) Create(ctx context.Context, draft models.Draft) (*models.AnimeEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.nextID
	r.nextID++

	e := entryFromDraft(strconv.FormatInt(key, 10), draft, r.now().UTC())
	r.entries[key] = e

	e = cloneEntry(e)
	return &e, nil
}

func (r *memoryAnimeRepository) Update(ctx context.Context, id string, draft models.Draft) (*models.AnimeEntry, error) {
	key, ok := parseID(id)
	if !ok {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.entries[key]
	if !ok {
		return nil, ErrNotFound
	}

	e := entryFromDraft(old.ID, draft, old.CreatedAt)
	r.entries[key] = e

	e = cloneEntry(e)
	return &e, nil
}

func (r *memoryAnimeRepository) Delete(ctx context.Context, id string) error {
	key, ok := parseID(id)
	if !ok {
		return ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; !ok {
		return ErrNotFound
	}
	delete(r.entries, key)
	return nil
}

// pageStart returns the offset of filter's page, or false when the page lies
// past the last match. It checks the bound before multiplying, so huge page
// numbers cannot overflow.
func pageStart(filter models.FilterSpec, total int) (int, bool) {
	if total == 0 || filter.Page-1 > (total-1)/filter.PageSize {
		return 0, false
	}
	return (filter.Page - 1) * filter.PageSize, true
}

func parseID(id string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// entryFromDraft is a full replace: every editable field comes from draft.
func entryFromDraft(id string, draft models.Draft, createdAt time.Time) models.AnimeEntry {
	genres := make([]string, len(draft.Genres))
	copy(genres, draft.Genres)
	return models.AnimeEntry{
		ID:        id,
		Title:     strings.TrimSpace(draft.Title),
		Status:    draft.Status,
		Rating:    draft.Rating,
		Genres:    genres,
		Image:     draft.Image,
		CreatedAt: createdAt,
	}
}

func cloneEntry(e models.AnimeEntry) models.AnimeEntry {
	genres := make([]string, len(e.Genres))
	copy(genres, e.Genres)
	e.Genres = genres
	return e
}

func sortEntries(entries []models.AnimeEntry, by models.SortField, desc bool) {
	key := func(e models.AnimeEntry) string {
		switch by {
		case models.SortByGenre:
			if len(e.Genres) == 0 {
				return ""
			}
			return strings.ToLower(e.Genres[0])
		default:
			return strings.ToLower(e.Title)
		}
	}

	compare := func(a, b models.AnimeEntry) int {
		switch by {
		case models.SortByRating:
			return cmpFloat(a.Rating, b.Rating)
		case models.SortByStatus:
			return statusRank(a.Status) - statusRank(b.Status)
		}
		return strings.Compare(key(a), key(b))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		c := compare(entries[i], entries[j])
		if desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		// ties keep a stable page order
		a, _ := parseID(entries[i].ID)
		b, _ := parseID(entries[j].ID)
		return a < b
	})
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// statusRank orders statuses along the watch lifecycle; unknown values sort last.
func statusRank(s models.Status) int {
	for i, st := range models.Statuses {
		if st == s {
			return i
		}
	}
	return len(models.Statuses)
}

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"animetracker/internal/models"
	"animetracker/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const (
	maxPageSize = 100
	maxBodySize = 1 << 20
)

type AnimeHandler struct {
	repo   repository.AnimeRepository
	logger *logrus.Logger
}

func NewAnimeHandler(repo repository.AnimeRepository, logger *logrus.Logger) *AnimeHandler {
	return &AnimeHandler{repo: repo, logger: logger}
}

// animeRequest is the create/update body. Clients send capitalized keys,
// which encoding/json matches regardless of case.
type animeRequest struct {
	Title  string   `json:"Title"`
	Status string   `json:"Status"`
	Rating float64  `json:"Rating"`
	Genres []string `json:"Genres"`
	Image  string   `json:"Image"`
}

type pagedResponse struct {
	Data       []models.AnimeEntry `json:"data"`
	Page       int                 `json:"page"`
	PageSize   int                 `json:"pageSize"`
	TotalCount int                 `json:"totalCount"`
	TotalPages int                 `json:"totalPages"`
}

// Filter handles GET /anime/filter.
func (h *AnimeHandler) Filter(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)

	entries, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.internalError(w, "list", err)
		return
	}

	writeJSON(w, http.StatusOK, pagedResponse{
		Data:       entries,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
		TotalPages: models.TotalPagesFor(total, filter.PageSize),
	})
}

// ListAll handles GET /anime: every entry as a bare array.
func (h *AnimeHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	var all []models.AnimeEntry
	filter := models.FilterSpec{SortBy: models.SortByTitle, Page: 1, PageSize: maxPageSize}
	for {
		entries, total, err := h.repo.List(r.Context(), filter)
		if err != nil {
			h.internalError(w, "list", err)
			return
		}
		all = append(all, entries...)
		if len(entries) == 0 || len(all) >= total {
			break
		}
		filter.Page++
	}
	if all == nil {
		all = []models.AnimeEntry{}
	}
	writeJSON(w, http.StatusOK, all)
}

// Get handles GET /anime/{id}.
func (h *AnimeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.repoError(w, "get", id, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Create handles POST /anime.
func (h *AnimeHandler) Create(w http.ResponseWriter, r *http.Request) {
	draft, ok := h.decodeDraft(w, r)
	if !ok {
		return
	}

	entry, err := h.repo.Create(r.Context(), draft)
	if err != nil {
		h.internalError(w, "create", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"id":    entry.ID,
		"title": entry.Title,
	}).Info("Anime created")

	w.Header().Set("Location", "/anime/"+entry.ID)
	writeJSON(w, http.StatusCreated, entry)
}

// Update handles PUT /anime/{id}. The body replaces every editable field.
func (h *AnimeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	draft, ok := h.decodeDraft(w, r)
	if !ok {
		return
	}

	entry, err := h.repo.Update(r.Context(), id, draft)
	if err != nil {
		h.repoError(w, "update", id, err)
		return
	}

	h.logger.WithField("id", id).Info("Anime updated")
	writeJSON(w, http.StatusOK, entry)
}

// Delete handles DELETE /anime/{id}.
func (h *AnimeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.repoError(w, "delete", id, err)
		return
	}

	h.logger.WithField("id", id).Info("Anime deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *AnimeHandler) decodeDraft(w http.ResponseWriter, r *http.Request) (models.Draft, bool) {
	var req animeRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	if err := dec.Decode(&req); err != nil {
		errs := fieldErrors{}
		errs.add("$", "The JSON value could not be converted.")
		writeValidation(w, errs)
		return models.Draft{}, false
	}

	draft, errs := validateRequest(req)
	if len(errs) > 0 {
		h.logger.WithField("errors", errs.String()).Debug("Rejected anime payload")
		writeValidation(w, errs)
		return models.Draft{}, false
	}
	return draft, true
}

func validateRequest(req animeRequest) (models.Draft, fieldErrors) {
	errs := fieldErrors{}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		errs.add("Title", "The Title field is required.")
	}

	status, err := models.ParseStatus(req.Status)
	if err != nil {
		names := make([]string, len(models.Statuses))
		for i, s := range models.Statuses {
			names[i] = string(s)
		}
		errs.add("Status", fmt.Sprintf("The field Status must be one of %s.", strings.Join(names, ", ")))
	}

	if req.Rating < models.MinRating || req.Rating > models.MaxRating {
		errs.add("Rating", fmt.Sprintf("The field Rating must be between %.0f and %.0f.", models.MinRating, models.MaxRating))
	}

	genres := make([]string, 0, len(req.Genres))
	for _, g := range req.Genres {
		g = strings.TrimSpace(g)
		if g == "" {
			errs.add("Genres", "Genres must not contain blank values.")
			break
		}
		genres = append(genres, g)
	}

	return models.Draft{
		Title:  title,
		Status: status,
		Rating: req.Rating,
		Genres: genres,
		Image:  strings.TrimSpace(req.Image),
	}, errs
}

// parseFilter reads the list query. Missing or unparseable values fall back
// to defaults instead of failing the request.
func parseFilter(r *http.Request) models.FilterSpec {
	q := r.URL.Query()

	filter := models.FilterSpec{
		Search: q.Get("search"),
		Page:   atoiOr(q.Get("page"), models.DefaultPage),
	}
	filter.PageSize = atoiOr(q.Get("pageSize"), models.DefaultPageSize)
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	if by, err := models.ParseSortField(q.Get("sortBy")); err == nil {
		filter.SortBy = by
	}
	filter.SortDescending, _ = strconv.ParseBool(q.Get("sortDescending"))

	return filter.Normalized()
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func (h *AnimeHandler) repoError(w http.ResponseWriter, op, id string, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Anime with ID %s not found", id))
		return
	}
	h.internalError(w, op, err)
}

func (h *AnimeHandler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.WithField("op", op).WithError(err).Error("Anime repository failure")
	writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
}

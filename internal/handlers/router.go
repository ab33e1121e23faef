package handlers

import (
	"net/http"

	"animetracker/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// RouterDeps collects what NewRouter needs.
type RouterDeps struct {
	Repository repository.AnimeRepository
	Images     *ImageStore
	Logger     *logrus.Logger

	// Metrics and MetricsHandler are optional.
	Metrics        HTTPRecorder
	MetricsHandler http.Handler
}

// NewRouter builds the catalog REST service:
//
//	GET    /anime/filter        paged list {data, page, pageSize, totalCount, totalPages}
//	GET    /anime               every entry as a bare array
//	POST   /anime               create
//	GET    /anime/{id}          get
//	PUT    /anime/{id}          full replace
//	DELETE /anime/{id}          204 on success
//	POST   /fileupload/upload   multipart "file" -> {imageUrl}
//	GET    /images/{name}       uploaded image
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	images := deps.Images
	if images == nil {
		images = NewImageStore()
	}

	animeHandler := NewAnimeHandler(deps.Repository, logger)
	uploadHandler := NewUploadHandler(images, logger)

	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(NewRecoveryMiddleware(logger))

	r.Route("/anime", func(r chi.Router) {
		r.Get("/", animeHandler.ListAll)
		r.Post("/", animeHandler.Create)
		r.Get("/filter", animeHandler.Filter)
		r.Get("/{id}", animeHandler.Get)
		r.Put("/{id}", animeHandler.Update)
		r.Delete("/{id}", animeHandler.Delete)
	})

	r.Post("/fileupload/upload", uploadHandler.Upload)
	r.Get("/images/{name}", uploadHandler.Serve)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	return r
}

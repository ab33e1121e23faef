package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	maxUploadSize = 5 << 20
	imagesPath    = "/images/"
)

type storedImage struct {
	mimeType string
	data     []byte
}

// ImageStore keeps uploaded images in memory, keyed by generated file name.
type ImageStore struct {
	mu     sync.RWMutex
	images map[string]storedImage
}

func NewImageStore() *ImageStore {
	return &ImageStore{images: make(map[string]storedImage)}
}

func (s *ImageStore) Put(name, mimeType string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[name] = storedImage{mimeType: mimeType, data: data}
}

func (s *ImageStore) Get(name string) (mimeType string, data []byte, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[name]
	return img.mimeType, img.data, ok
}

type UploadHandler struct {
	images *ImageStore
	logger *logrus.Logger
}

func NewUploadHandler(images *ImageStore, logger *logrus.Logger) *UploadHandler {
	return &UploadHandler{images: images, logger: logger}
}

type uploadResponse struct {
	ImageURL string `json:"imageUrl"`
}

// Upload handles POST /fileupload/upload with the image in the multipart
// field "file". The stored name is a fresh UUID plus the sniffed extension.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<10)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		errs := fieldErrors{}
		if errors.As(err, &tooLarge) {
			errs.add("file", "The file exceeds the 5 MB limit.")
		} else {
			errs.add("file", "No file was uploaded.")
		}
		writeValidation(w, errs)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		h.logger.WithError(err).Error("Failed to read uploaded file")
		writeError(w, http.StatusInternalServerError, "Failed to read uploaded file.")
		return
	}
	if len(data) > maxUploadSize {
		errs := fieldErrors{}
		errs.add("file", "The file exceeds the 5 MB limit.")
		writeValidation(w, errs)
		return
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		errs := fieldErrors{}
		errs.add("file", "Only image files are allowed.")
		writeValidation(w, errs)
		return
	}

	name := uuid.New().String() + mime.Extension()
	h.images.Put(name, mime.String(), data)

	h.logger.WithFields(logrus.Fields{
		"file_name": header.Filename,
		"stored_as": name,
		"mime_type": mime.String(),
		"size":      len(data),
	}).Info("Image uploaded")

	writeJSON(w, http.StatusOK, uploadResponse{ImageURL: imagesPath + name})
}

// Serve handles GET /images/{name}.
func (h *UploadHandler) Serve(w http.ResponseWriter, r *http.Request) {
	mimeType, data, ok := h.images.Get(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

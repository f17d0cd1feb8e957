package handlers

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/repository"
	"github.com/reelforge/reelforge/internal/storage"
)

// FileHandler serves produced video artifacts with range request support.
// These are raw chi routes rather than API operations so that seeking in
// a browser player works against them.
type FileHandler struct {
	videos repository.VideoRepository
	layout *storage.VideoLayout
	logger *slog.Logger
}

// NewFileHandler creates a new file handler.
func NewFileHandler(videos repository.VideoRepository, layout *storage.VideoLayout, logger *slog.Logger) *FileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileHandler{videos: videos, layout: layout, logger: logger}
}

// Register mounts the file routes on the router.
func (h *FileHandler) Register(router chi.Router) {
	router.Get("/api/v1/files/{id}/video", h.ServeVideo)
	router.Get("/api/v1/files/{id}/thumbnail", h.ServeThumbnail)
	router.Get("/files/*", h.ServeRaw)
}

// ServeVideo streams a run's final output. The quality query parameter
// selects the 480p transcode; anything else gets 720p.
func (h *FileHandler) ServeVideo(w http.ResponseWriter, r *http.Request) {
	run := h.loadRun(w, r)
	if run == nil {
		return
	}

	relative := run.Files.Final720
	if r.URL.Query().Get("quality") == "480p" {
		relative = run.Files.Final480
	}
	if relative == "" {
		http.Error(w, "video not yet available", http.StatusNotFound)
		return
	}
	h.serveFile(w, r, relative, "video/mp4")
}

// ServeThumbnail streams a run's thumbnail image.
func (h *FileHandler) ServeThumbnail(w http.ResponseWriter, r *http.Request) {
	run := h.loadRun(w, r)
	if run == nil {
		return
	}
	if run.Files.Thumbnail == "" {
		http.Error(w, "thumbnail not yet available", http.StatusNotFound)
		return
	}
	h.serveFile(w, r, run.Files.Thumbnail, "image/jpeg")
}

// ServeRaw streams an artifact addressed by its storage-relative path,
// matching the URLs the API returns. Path traversal is rejected by the
// storage sandbox.
func (h *FileHandler) ServeRaw(w http.ResponseWriter, r *http.Request) {
	relative := chi.URLParam(r, "*")
	if relative == "" {
		http.Error(w, "missing file path", http.StatusBadRequest)
		return
	}
	h.serveFile(w, r, relative, "")
}

func (h *FileHandler) loadRun(w http.ResponseWriter, r *http.Request) *models.VideoRun {
	id, err := models.ParseULID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid ID format", http.StatusBadRequest)
		return nil
	}

	run, err := h.videos.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("loading run for file serving", slog.String("error", err.Error()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil
	}
	if run == nil {
		http.Error(w, "video run not found", http.StatusNotFound)
		return nil
	}
	return run
}

func (h *FileHandler) serveFile(w http.ResponseWriter, r *http.Request, relative, contentType string) {
	abs, err := h.layout.AbsolutePath(relative)
	if err != nil {
		http.Error(w, "invalid file path", http.StatusBadRequest)
		return
	}

	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		h.logger.Error("opening artifact", slog.String("path", relative), slog.String("error", err.Error()))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	if contentType == "" {
		contentType = contentTypeFor(abs)
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeContent(w, r, filepath.Base(abs), info.ModTime(), f)
}

func contentTypeFor(name string) string {
	switch filepath.Ext(name) {
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return ""
	}
}

package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/reelforge/reelforge/internal/models"
	"github.com/reelforge/reelforge/internal/repository"
	"github.com/reelforge/reelforge/internal/storage"
)

func newFileEnv(t *testing.T) (*chi.Mux, repository.VideoRepository, *storage.VideoLayout) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.VideoRun{}, &models.Segment{}))

	sandbox, err := storage.NewSandbox(t.TempDir())
	require.NoError(t, err)
	layout := storage.NewVideoLayout(sandbox, "")
	videos := repository.NewVideoRepository(db)

	router := chi.NewRouter()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	NewFileHandler(videos, layout, quiet).Register(router)
	return router, videos, layout
}

func writeArtifact(t *testing.T, layout *storage.VideoLayout, relative string, content []byte) {
	t.Helper()
	require.NoError(t, layout.Sandbox().MkdirAll(filepath.Dir(relative)))
	require.NoError(t, layout.Sandbox().AtomicWrite(relative, content))
}

func TestFileHandler_ServeVideo(t *testing.T) {
	router, videos, layout := newFileEnv(t)

	run := &models.VideoRun{
		UserID:         "u1",
		Prompt:         "p",
		TargetDuration: 24,
		Status:         models.VideoStatusCompleted,
	}
	require.NoError(t, videos.Create(context.Background(), run))

	rel720 := "videos/u1/" + run.ID.String() + "/final_720p.mp4"
	rel480 := "videos/u1/" + run.ID.String() + "/final_480p.mp4"
	writeArtifact(t, layout, rel720, []byte("seven-twenty"))
	writeArtifact(t, layout, rel480, []byte("four-eighty"))

	run.Files.Final720 = rel720
	run.Files.Final480 = rel480
	require.NoError(t, videos.Update(context.Background(), run))

	t.Run("default quality", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/files/"+run.ID.String()+"/video", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
		assert.Equal(t, "seven-twenty", rec.Body.String())
	})

	t.Run("480p quality", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/files/"+run.ID.String()+"/video?quality=480p", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "four-eighty", rec.Body.String())
	})

	t.Run("range request", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/files/"+run.ID.String()+"/video", nil)
		req.Header.Set("Range", "bytes=0-4")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "seven", rec.Body.String())
	})

	t.Run("unknown run", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/files/"+models.NewULID().String()+"/video", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/files/bogus/video", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFileHandler_ServeVideo_NotYetProduced(t *testing.T) {
	router, videos, _ := newFileEnv(t)

	run := &models.VideoRun{UserID: "u1", Prompt: "p", TargetDuration: 24}
	require.NoError(t, videos.Create(context.Background(), run))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/files/"+run.ID.String()+"/video", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFileHandler_ServeThumbnail(t *testing.T) {
	router, videos, layout := newFileEnv(t)

	run := &models.VideoRun{UserID: "u1", Prompt: "p", TargetDuration: 24}
	require.NoError(t, videos.Create(context.Background(), run))

	rel := "videos/u1/" + run.ID.String() + "/thumbnail.jpg"
	writeArtifact(t, layout, rel, []byte("jpeg-bytes"))
	run.Files.Thumbnail = rel
	require.NoError(t, videos.Update(context.Background(), run))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/files/"+run.ID.String()+"/thumbnail", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
}

func TestFileHandler_ServeRaw(t *testing.T) {
	router, _, layout := newFileEnv(t)

	writeArtifact(t, layout, "videos/u1/run/segment_001.mp4", []byte("clip"))

	t.Run("existing file", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/files/videos/u1/run/segment_001.mp4", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "clip", rec.Body.String())
	})

	t.Run("missing file", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/files/videos/u1/run/missing.mp4", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("traversal is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/files/..%2f..%2fetc%2fpasswd", nil)
		router.ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusOK, rec.Code)
	})
}

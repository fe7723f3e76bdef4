package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DukeRupert/novella/internal/content"
	"github.com/DukeRupert/novella/internal/domain"
	"github.com/DukeRupert/novella/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContentFixture(t *testing.T) (*http.ServeMux, content.Locator, storage.Storage) {
	t.Helper()
	logger := testLogger()
	locator := content.NewMemoryLocator()
	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()}, logger)
	require.NoError(t, err)

	mux := http.NewServeMux()
	passthrough := func(next http.Handler) http.Handler { return next }
	NewContentHandler(locator, store, logger).RegisterRoutes(mux, passthrough)
	return mux, locator, store
}

func multipartUpload(t *testing.T, filename, body string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestIngestRegistersContent(t *testing.T) {
	mux, locator, store := newContentFixture(t)

	body, contentType := multipartUpload(t, "moby-dick.pdf", "%PDF-1.7 fake book", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/content", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ContentID   uuid.UUID `json:"content_id"`
		StorageKey  string    `json:"storage_key"`
		ContentType string    `json:"content_type"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEqual(t, uuid.Nil, resp.ContentID)
	assert.Equal(t, "application/pdf", resp.ContentType)

	// The locator and the storage backend must both know the item.
	res, err := locator.Locate(context.Background(), resp.ContentID)
	require.NoError(t, err)
	assert.Equal(t, resp.StorageKey, res.StorageKey)

	exists, err := store.Exists(context.Background(), resp.StorageKey)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIngestWithExplicitContentID(t *testing.T) {
	mux, locator, _ := newContentFixture(t)
	contentID := uuid.New()

	body, contentType := multipartUpload(t, "novel.epub", "PK fake epub", map[string]string{
		"content_id": contentID.String(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/content", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	res, err := locator.Locate(context.Background(), contentID)
	require.NoError(t, err)
	assert.Equal(t, "application/epub+zip", res.ContentType)
}

func TestIngestRejectsUnsupportedType(t *testing.T) {
	mux, _, _ := newContentFixture(t)

	body, contentType := multipartUpload(t, "malware.exe", "MZ", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/content", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.EINVALID, errorCode(t, rec))
}

func TestIngestRequiresMultipart(t *testing.T) {
	mux, _, _ := newContentFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/content", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestRejectsInvalidContentID(t *testing.T) {
	mux, _, _ := newContentFixture(t)

	body, contentType := multipartUpload(t, "book.pdf", "%PDF", map[string]string{
		"content_id": "not-a-uuid",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/content", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

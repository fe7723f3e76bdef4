// Package handler contains HTTP handlers for the entitlement service.
//
// This file implements content ingest: registering a content item's bytes
// and catalog entry in one operation, so the locator can never reference
// bytes that were not written.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/novella/internal/content"
	"github.com/DukeRupert/novella/internal/domain"
	"github.com/DukeRupert/novella/internal/storage"
	"github.com/google/uuid"
)

// maxContentBytes caps a single ingest upload.
const maxContentBytes = 512 << 20 // 512 MB

// ContentHandler handles content ingest requests from the admin console.
type ContentHandler struct {
	locator content.Locator
	store   storage.Storage
	logger  *slog.Logger
}

// NewContentHandler creates a new ContentHandler.
func NewContentHandler(locator content.Locator, store storage.Storage, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{locator: locator, store: store, logger: logger}
}

// RegisterRoutes registers ingest routes with the provided mux, wrapped in
// the given admin authentication middleware.
func (h *ContentHandler) RegisterRoutes(mux *http.ServeMux, adminAuth func(http.Handler) http.Handler) {
	mux.Handle("POST /api/content", adminAuth(http.HandlerFunc(h.Ingest)))
}

// Ingest accepts a multipart upload ("file" field, optional "content_id"
// field), stores the bytes, and registers the resource in the catalog.
func (h *ContentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	const op = "content.ingest"

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "request must be multipart form data"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "a file field is required"))
		return
	}
	defer file.Close()

	contentID := uuid.New()
	if idStr := r.FormValue("content_id"); idStr != "" {
		contentID, err = uuid.Parse(idStr)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid content_id"))
			return
		}
	}

	// Multipart writers default the part type to octet-stream; prefer the
	// filename extension in that case.
	provided := header.Header.Get("Content-Type")
	if provided == "application/octet-stream" {
		provided = ""
	}
	contentType := storage.DetectContentType(provided, header.Filename)
	if !storage.IsAllowedContentType(contentType) {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "content must be PDF or EPUB"))
		return
	}

	key := storage.ContentKey(contentID, header.Filename)
	err = h.store.Put(r.Context(), key, file, storage.PutOptions{
		ContentType: contentType,
		MaxSize:     maxContentBytes,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to store content bytes"))
		return
	}

	res := &content.Resource{
		ContentID:   contentID,
		StorageKey:  key,
		ContentType: contentType,
		Size:        header.Size,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.locator.Register(r.Context(), res); err != nil {
		// Roll the bytes back so storage and catalog stay consistent.
		if delErr := h.store.Delete(r.Context(), key); delErr != nil {
			h.logger.Error("orphaned content bytes after failed registration",
				"storage_key", key,
				"error", delErr,
			)
		}
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to register content"))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"content_id":   res.ContentID,
		"storage_key":  res.StorageKey,
		"content_type": res.ContentType,
		"size":         res.Size,
	})
}

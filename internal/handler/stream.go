// Package handler contains HTTP handlers for the entitlement service.
//
// This file implements the stream gateway: the only component that touches
// raw content bytes. It redeems an access token, re-checks entitlement, and
// streams the bytes the token was bound to. Every failure is fail-closed:
// the gateway never serves different content than the token names.
package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DukeRupert/novella/internal/content"
	"github.com/DukeRupert/novella/internal/domain"
	"github.com/DukeRupert/novella/internal/metrics"
	"github.com/DukeRupert/novella/internal/service"
	"github.com/DukeRupert/novella/internal/storage"
	"github.com/DukeRupert/novella/internal/token"
)

// =============================================================================
// Handler
// =============================================================================

// StreamHandler redeems access tokens and streams content bytes.
type StreamHandler struct {
	tokens       *token.Service
	entitlements service.EntitlementService
	locator      content.Locator
	store        storage.Storage
	logger       *slog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(
	tokens *token.Service,
	entitlements service.EntitlementService,
	locator content.Locator,
	store storage.Storage,
	logger *slog.Logger,
) *StreamHandler {
	return &StreamHandler{
		tokens:       tokens,
		entitlements: entitlements,
		locator:      locator,
		store:        store,
		logger:       logger,
	}
}

// RegisterRoutes registers the stream route with the provided mux.
func (h *StreamHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /stream", h.Stream)
}

// =============================================================================
// GET /stream?token=...
// =============================================================================

// Stream verifies the token, re-checks entitlement, locates the resource,
// and streams its bytes with byte-range support.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	const op = "stream.serve"
	now := time.Now()

	raw := r.URL.Query().Get("token")
	if raw == "" {
		metrics.TokenVerifications.WithLabelValues("missing").Inc()
		h.fail(w, r, domain.BadSignature(op))
		return
	}

	grant, err := h.tokens.Verify(r.Context(), raw, now)
	if err != nil {
		metrics.TokenVerifications.WithLabelValues(domain.ErrorCode(err)).Inc()
		h.fail(w, r, err)
		return
	}
	metrics.TokenVerifications.WithLabelValues("ok").Inc()

	// The token proves the right existed at issue time; this re-check
	// catches a revocation, downgrade, or window rollover since then.
	if err := h.entitlements.VerifyAccess(r.Context(), grant.SubscriberID, grant.ContentID, now); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.locator.Locate(r.Context(), grant.ContentID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			// Catalog points at nothing. A data-integrity fault, not an
			// entitlement decision; never serve substitute content.
			metrics.ContentUnavailable.Inc()
			h.fail(w, r, domain.ContentUnavailable(op, grant.ContentID.String()))
			return
		}
		h.fail(w, r, domain.Internal(err, op, "content lookup failed"))
		return
	}

	h.serve(w, r, res, op)
}

// serve streams the resource's bytes, honoring a single-range Range header.
func (h *StreamHandler) serve(w http.ResponseWriter, r *http.Request, res *content.Resource, op string) {
	offset, length, partial, ok := parseRange(r.Header.Get("Range"), res.Size)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", res.Size))
		metrics.StreamsTotal.WithLabelValues("range_not_satisfiable").Inc()
		http.Error(w, "requested range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	var (
		rc   io.ReadCloser
		info storage.ObjectInfo
		err  error
	)
	if partial {
		rc, info, err = h.store.GetRange(r.Context(), res.StorageKey, offset, length)
	} else {
		rc, info, err = h.store.Get(r.Context(), res.StorageKey)
	}
	if err != nil {
		if storage.IsNotFound(err) {
			// Registered resource with no bytes behind it.
			metrics.ContentUnavailable.Inc()
			h.fail(w, r, domain.ContentUnavailable(op, res.ContentID.String()))
			return
		}
		if storage.IsInvalidRange(err) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", res.Size))
			metrics.StreamsTotal.WithLabelValues("range_not_satisfiable").Inc()
			http.Error(w, "requested range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		h.fail(w, r, domain.Internal(err, op, "failed to open content"))
		return
	}
	defer rc.Close()

	contentType := res.ContentType
	if contentType == "" {
		contentType = info.ContentType
	}
	total := res.Size
	if total == 0 {
		total = info.Size
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "private, no-store")

	if partial {
		if length < 0 {
			length = total - offset
		}
		w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
	}

	// A claim, once recorded, is not returned by an interrupted read: a
	// client disconnect just aborts the copy, with no entitlement change.
	written, err := io.Copy(w, rc)
	metrics.StreamBytesTotal.Add(float64(written))
	if err != nil {
		metrics.StreamsTotal.WithLabelValues("aborted").Inc()
		h.logger.Debug("stream aborted",
			"content_id", res.ContentID,
			"written", written,
			"error", err,
		)
		return
	}
	metrics.StreamsTotal.WithLabelValues("ok").Inc()
}

// fail writes the error response and counts the failed stream.
func (h *StreamHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	metrics.StreamsTotal.WithLabelValues(domain.ErrorCode(err)).Inc()
	ErrorResponse(w, r, h.logger, err)
}

// =============================================================================
// Range Parsing
// =============================================================================

// parseRange interprets a single-range Range header against an object of
// the given size. Returns partial=false for absent or syntactically
// malformed headers (which are ignored per RFC 9110), and ok=false for a
// well-formed but unsatisfiable range. Multi-range requests are served as
// full responses.
func parseRange(header string, size int64) (offset, length int64, partial, ok bool) {
	if header == "" {
		return 0, -1, false, true
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, -1, false, true
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return 0, -1, false, true
	}

	dash := strings.Index(spec, "-")
	if dash < 0 {
		return 0, -1, false, true
	}
	startStr, endStr := strings.TrimSpace(spec[:dash]), strings.TrimSpace(spec[dash+1:])

	// Suffix form: bytes=-N means the final N bytes.
	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, -1, false, true
		}
		if n > size {
			n = size
		}
		return size - n, n, true, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, -1, false, true
	}
	if start >= size {
		return 0, 0, false, false
	}

	if endStr == "" {
		return start, size - start, true, true
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return 0, -1, false, true
	}
	if end >= size {
		end = size - 1
	}
	return start, end - start + 1, true, true
}

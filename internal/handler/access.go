// Package handler contains HTTP handlers for the entitlement service.
//
// This file implements the access-request flow: the client-facing API layer
// asks for access to a content item, the quota engine decides, and a
// short-lived token is returned for redemption at the stream gateway.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/DukeRupert/novella/internal/domain"
	"github.com/DukeRupert/novella/internal/metrics"
	"github.com/DukeRupert/novella/internal/middleware"
	"github.com/DukeRupert/novella/internal/service"
	"github.com/DukeRupert/novella/internal/token"
	"github.com/google/uuid"
)

// =============================================================================
// Request / Response Types
// =============================================================================

// AccessRequest asks for permission to open one content item.
type AccessRequest struct {
	SubscriberID uuid.UUID `json:"subscriber_id"`
	ContentID    uuid.UUID `json:"content_id"`
}

// AccessResponse carries the signed token the client presents to the stream
// gateway, and what the decision cost them.
type AccessResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Decision  string    `json:"decision"` // "allow" or "already_claimed"
	Used      int       `json:"used"`
	Limit     int       `json:"limit,omitempty"`
	Unlimited bool      `json:"unlimited,omitempty"`
}

// TierChangeRequest is pushed by the billing collaborator. It is the only
// write path for tier changes.
type TierChangeRequest struct {
	TierID      string     `json:"tier_id"`
	EffectiveAt *time.Time `json:"effective_at,omitempty"`
}

// EntitlementResponse summarizes a subscriber's quota position.
type EntitlementResponse struct {
	SubscriberID uuid.UUID  `json:"subscriber_id"`
	TierID       string     `json:"tier_id"`
	Used         int        `json:"used"`
	Limit        int        `json:"limit"`
	Unlimited    bool       `json:"unlimited"`
	Remaining    int        `json:"remaining"`
	NextReset    *time.Time `json:"next_reset,omitempty"`
}

// =============================================================================
// Handler
// =============================================================================

// AccessHandler handles access requests and entitlement reads.
type AccessHandler struct {
	quota        service.QuotaService
	entitlements service.EntitlementService
	tokens       *token.Service
	limiter      *middleware.RateLimiter
	logger       *slog.Logger
}

// NewAccessHandler creates a new AccessHandler. limiter may be nil to
// disable per-subscriber rate limiting.
func NewAccessHandler(
	quota service.QuotaService,
	entitlements service.EntitlementService,
	tokens *token.Service,
	limiter *middleware.RateLimiter,
	logger *slog.Logger,
) *AccessHandler {
	return &AccessHandler{
		quota:        quota,
		entitlements: entitlements,
		tokens:       tokens,
		limiter:      limiter,
		logger:       logger,
	}
}

// RegisterRoutes registers access routes with the provided mux. The tier
// route is the system's only privileged write path, so it goes behind the
// given admin authentication middleware; the reader-facing routes do not.
//
// Routes:
// - POST /api/access                           -> RequestAccess
// - GET  /api/subscribers/{id}/entitlement     -> GetEntitlement
// - PUT  /api/subscribers/{id}/tier            -> SetTier (admin)
func (h *AccessHandler) RegisterRoutes(mux *http.ServeMux, adminAuth func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /api/access", h.RequestAccess)
	mux.HandleFunc("GET /api/subscribers/{id}/entitlement", h.GetEntitlement)
	mux.Handle("PUT /api/subscribers/{id}/tier", adminAuth(http.HandlerFunc(h.SetTier)))
}

// =============================================================================
// POST /api/access
// =============================================================================

// RequestAccess evaluates quota and, when granted, issues an access token.
// ALREADY_CLAIMED is a success: re-opening claimed content costs nothing and
// gets a fresh token exactly as on allow.
func (h *AccessHandler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	const op = "access.request"

	var req AccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "request body must be JSON with subscriber_id and content_id"))
		return
	}
	if req.SubscriberID == uuid.Nil || req.ContentID == uuid.Nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "subscriber_id and content_id are required"))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(req.SubscriberID.String()) {
		retryAfter := int(h.limiter.TimeUntilReset(req.SubscriberID.String()).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		ErrorResponse(w, r, h.logger, domain.RateLimit(op))
		return
	}

	now := time.Now()
	decision, err := h.quota.Evaluate(r.Context(), req.SubscriberID, req.ContentID, now)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if !decision.Granted() {
		ErrorResponse(w, r, h.logger, decision.DenyError(op))
		return
	}

	signed, expiresAt, err := h.tokens.Issue(req.SubscriberID, req.ContentID, now)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "failed to issue access token"))
		return
	}
	metrics.TokensIssued.Inc()

	h.logger.Info("access granted",
		"subscriber_id", req.SubscriberID,
		"content_id", req.ContentID,
		"decision", decision.Outcome.String(),
		"used", decision.Used,
		"limit", decision.Limit,
	)

	writeJSON(w, http.StatusOK, AccessResponse{
		Token:     signed,
		ExpiresAt: expiresAt,
		Decision:  decision.Outcome.String(),
		Used:      decision.Used,
		Limit:     decision.Limit,
		Unlimited: decision.Unlimited,
	})
}

// =============================================================================
// GET /api/subscribers/{id}/entitlement
// =============================================================================

// GetEntitlement returns the subscriber's quota usage, including the next
// reset time shown when they hit the limit.
func (h *AccessHandler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	const op = "access.get_entitlement"

	subscriberID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid subscriber id"))
		return
	}

	usage, err := h.entitlements.Usage(r.Context(), subscriberID, time.Now())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := EntitlementResponse{
		SubscriberID: subscriberID,
		TierID:       usage.TierID,
		Used:         usage.Used,
		Limit:        usage.Limit,
		Unlimited:    usage.Unlimited,
		Remaining:    usage.Remaining(),
	}
	if !usage.NextReset.IsZero() {
		resp.NextReset = &usage.NextReset
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// PUT /api/subscribers/{id}/tier
// =============================================================================

// SetTier applies a tier change pushed by the billing collaborator.
func (h *AccessHandler) SetTier(w http.ResponseWriter, r *http.Request) {
	const op = "access.set_tier"

	subscriberID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid subscriber id"))
		return
	}

	var req TierChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "request body must be JSON with tier_id"))
		return
	}
	if req.TierID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "tier_id is required"))
		return
	}

	effectiveAt := time.Now()
	if req.EffectiveAt != nil {
		effectiveAt = *req.EffectiveAt
	}

	if err := h.entitlements.SetTier(r.Context(), subscriberID, req.TierID, effectiveAt); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Package domain contains core business types and interfaces.
//
// This file defines the durable entitlement record: a subscriber's tier,
// their current quota window, and the claims they hold within it.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Claim is an immutable, append-only fact: this subscriber claimed this
// content item at this time, under this tier and cycle anchor. Claims are
// never updated or deleted; a claim outside the current window is logically
// expired and simply drops out of the live set.
type Claim struct {
	ID           uuid.UUID
	SubscriberID uuid.UUID
	ContentID    uuid.UUID
	TierID       string    // tier active when the claim was made
	CycleAnchor  time.Time // anchor of the window the claim was made in
	ClaimedAt    time.Time
}

// Entitlement is a subscriber's durable quota state.
//
// Claims holds only the live claims for the current window, i.e. those with
// ClaimedAt >= CycleAnchor. Expired claims stay in the audit trail but are
// not loaded here.
type Entitlement struct {
	SubscriberID uuid.UUID
	TierID       string
	CycleAnchor  time.Time
	Claims       []Claim
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LiveCount returns the number of claims counted against the current window.
func (e *Entitlement) LiveCount() int {
	return len(e.Claims)
}

// HasClaim reports whether contentID is in the live claim set.
func (e *Entitlement) HasClaim(contentID uuid.UUID) bool {
	for _, c := range e.Claims {
		if c.ContentID == contentID {
			return true
		}
	}
	return false
}

// QuotaUsage summarizes a subscriber's position against their tier's limit,
// including the reset time shown to users when they hit the limit.
type QuotaUsage struct {
	TierID    string
	Used      int
	Limit     int
	Unlimited bool
	NextReset time.Time // zero for unbounded windows
}

// Remaining returns how many claims the subscriber can still make this
// window. It is only meaningful for metered tiers.
func (u *QuotaUsage) Remaining() int {
	if u.Unlimited {
		return 0
	}
	if r := u.Limit - u.Used; r > 0 {
		return r
	}
	return 0
}

// Package domain contains core business types and interfaces.
//
// This file defines subscription tiers, their claim quotas, and the window
// policies that govern when quotas reset.
package domain

import (
	"time"
)

// WindowKind determines how a tier's quota window advances over time.
type WindowKind string

const (
	// WindowRollingMonth resets the quota at the start of each calendar
	// month (UTC).
	WindowRollingMonth WindowKind = "rolling_calendar_month"

	// WindowFixedDuration resets the quota every WindowLength, measured
	// from the subscriber's cycle anchor.
	WindowFixedDuration WindowKind = "fixed_duration"

	// WindowUnbounded never resets; claims accumulate for the lifetime of
	// the entitlement.
	WindowUnbounded WindowKind = "unbounded"
)

// Tier defines a subscription level and its content-claim quota policy.
//
// Tiers are immutable once referenced by an active subscriber. Adjusting a
// limit means adding a new tier to the catalog, never mutating an existing
// one in place; historical claims keep the tier id they were made under.
type Tier struct {
	ID           string
	ClaimLimit   int  // maximum live claims per window; ignored when Unlimited
	Unlimited    bool // no claim limit
	WindowKind   WindowKind
	WindowLength time.Duration // only meaningful for WindowFixedDuration
}

// Outranks reports whether t grants strictly more claim headroom than other.
// Used to classify a tier change as an upgrade (reset the cycle anchor) or a
// downgrade (preserve it, so the change can't be used to refresh quota).
func (t Tier) Outranks(other Tier) bool {
	if t.Unlimited {
		return !other.Unlimited
	}
	if other.Unlimited {
		return false
	}
	return t.ClaimLimit > other.ClaimLimit
}

// AdvanceAnchor returns the cycle anchor after applying every window
// rollover that has occurred between anchor and now. The result equals
// anchor when no boundary has been crossed, which makes rollover checks
// idempotent and safe to run on every read.
func (t Tier) AdvanceAnchor(anchor, now time.Time) time.Time {
	switch t.WindowKind {
	case WindowRollingMonth:
		ms := monthStart(now.UTC())
		if ms.After(anchor) {
			return ms
		}
		return anchor
	case WindowFixedDuration:
		if t.WindowLength <= 0 {
			return anchor
		}
		elapsed := now.Sub(anchor)
		if elapsed < t.WindowLength {
			return anchor
		}
		windows := elapsed / t.WindowLength
		return anchor.Add(windows * t.WindowLength)
	default:
		return anchor
	}
}

// NextReset returns when the window anchored at anchor ends. The second
// return value is false for unbounded tiers, which never reset.
func (t Tier) NextReset(anchor time.Time) (time.Time, bool) {
	switch t.WindowKind {
	case WindowRollingMonth:
		ms := monthStart(anchor.UTC())
		return ms.AddDate(0, 1, 0), true
	case WindowFixedDuration:
		if t.WindowLength <= 0 {
			return time.Time{}, false
		}
		return anchor.Add(t.WindowLength), true
	default:
		return time.Time{}, false
	}
}

// monthStart returns midnight UTC on the first day of t's month.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// Tier Catalog
// =============================================================================

// Catalog is a read-only lookup table of tier definitions.
type Catalog struct {
	tiers       map[string]Tier
	defaultTier string
}

// NewCatalog builds a catalog from the given tiers. defaultTier names the
// tier assigned to subscribers on first contact and must be present.
func NewCatalog(defaultTier string, tiers ...Tier) (*Catalog, error) {
	c := &Catalog{
		tiers:       make(map[string]Tier, len(tiers)),
		defaultTier: defaultTier,
	}
	for _, t := range tiers {
		if t.ID == "" {
			return nil, Invalid("catalog.new", "tier id must not be empty")
		}
		if _, dup := c.tiers[t.ID]; dup {
			return nil, Conflict("catalog.new", "duplicate tier id "+t.ID)
		}
		if !t.Unlimited && t.ClaimLimit < 0 {
			return nil, Invalid("catalog.new", "claim limit must be >= 0")
		}
		if t.WindowKind == WindowFixedDuration && t.WindowLength <= 0 {
			return nil, Invalid("catalog.new", "fixed-duration tier needs a positive window length")
		}
		c.tiers[t.ID] = t
	}
	if _, ok := c.tiers[defaultTier]; !ok {
		return nil, Invalid("catalog.new", "default tier "+defaultTier+" is not in the catalog")
	}
	return c, nil
}

// Get returns the tier with the given id.
// Returns ENOTFOUND if no such tier exists.
func (c *Catalog) Get(id string) (Tier, error) {
	t, ok := c.tiers[id]
	if !ok {
		return Tier{}, NotFound("catalog.get", "tier", id)
	}
	return t, nil
}

// Default returns the tier assigned to new subscribers.
func (c *Catalog) Default() Tier {
	return c.tiers[c.defaultTier]
}

// Built-in tier ids.
const (
	TierFree     = "free"
	TierStandard = "standard"
	TierPremium  = "premium"
	TierTrial    = "trial"
)

// DefaultCatalog returns the platform's built-in tier table.
// Free readers get a small monthly allowance, standard a larger one,
// premium is unmetered, and trial gives a fixed 30-day window from signup.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(TierFree,
		Tier{ID: TierFree, ClaimLimit: 2, WindowKind: WindowRollingMonth},
		Tier{ID: TierStandard, ClaimLimit: 10, WindowKind: WindowRollingMonth},
		Tier{ID: TierPremium, Unlimited: true, WindowKind: WindowUnbounded},
		Tier{ID: TierTrial, ClaimLimit: 5, WindowKind: WindowFixedDuration, WindowLength: 30 * 24 * time.Hour},
	)
	if err != nil {
		panic(err) // built-in table is invalid only via a programming error
	}
	return c
}

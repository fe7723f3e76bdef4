package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierOutranks(t *testing.T) {
	free := Tier{ID: "free", ClaimLimit: 2}
	standard := Tier{ID: "standard", ClaimLimit: 10}
	premium := Tier{ID: "premium", Unlimited: true}

	tests := []struct {
		name string
		a, b Tier
		want bool
	}{
		{"higher limit outranks lower", standard, free, true},
		{"lower limit does not outrank higher", free, standard, false},
		{"equal limits do not outrank", free, free, false},
		{"unlimited outranks metered", premium, standard, true},
		{"metered does not outrank unlimited", standard, premium, false},
		{"unlimited does not outrank unlimited", premium, premium, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Outranks(tt.b))
		})
	}
}

func TestAdvanceAnchorRollingMonth(t *testing.T) {
	tier := Tier{ID: "free", ClaimLimit: 2, WindowKind: WindowRollingMonth}
	anchor := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	aprilFirst := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"same moment", anchor, anchor},
		{"later in same month", anchor.Add(72 * time.Hour), anchor},
		{"one second before month boundary", aprilFirst.Add(-time.Second), anchor},
		{"exactly at month boundary", aprilFirst, aprilFirst},
		{"one second after month boundary", aprilFirst.Add(time.Second), aprilFirst},
		{"several months later", time.Date(2026, time.July, 15, 3, 0, 0, 0, time.UTC),
			time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tier.AdvanceAnchor(anchor, tt.now)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestAdvanceAnchorFixedDuration(t *testing.T) {
	tier := Tier{ID: "trial", ClaimLimit: 5, WindowKind: WindowFixedDuration, WindowLength: 30 * 24 * time.Hour}
	anchor := time.Date(2026, time.January, 5, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"inside first window", anchor.Add(29 * 24 * time.Hour), anchor},
		{"one second before boundary", anchor.Add(30*24*time.Hour - time.Second), anchor},
		{"exactly at boundary", anchor.Add(30 * 24 * time.Hour), anchor.Add(30 * 24 * time.Hour)},
		{"two and a half windows later", anchor.Add(75 * 24 * time.Hour), anchor.Add(60 * 24 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tier.AdvanceAnchor(anchor, tt.now)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestAdvanceAnchorIdempotent(t *testing.T) {
	// Re-running the advance against the same clock must be a no-op.
	tier := Tier{ID: "free", ClaimLimit: 2, WindowKind: WindowRollingMonth}
	anchor := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, time.May, 20, 15, 30, 0, 0, time.UTC)

	first := tier.AdvanceAnchor(anchor, now)
	second := tier.AdvanceAnchor(first, now)
	assert.True(t, first.Equal(second))
}

func TestAdvanceAnchorUnbounded(t *testing.T) {
	tier := Tier{ID: "premium", Unlimited: true, WindowKind: WindowUnbounded}
	anchor := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	now := anchor.AddDate(2, 0, 0)

	got := tier.AdvanceAnchor(anchor, now)
	assert.True(t, got.Equal(anchor), "unbounded windows never roll over")
}

func TestNextReset(t *testing.T) {
	anchor := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	t.Run("rolling month", func(t *testing.T) {
		tier := Tier{ID: "free", WindowKind: WindowRollingMonth}
		reset, ok := tier.NextReset(anchor)
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), reset)
	})

	t.Run("fixed duration", func(t *testing.T) {
		tier := Tier{ID: "trial", WindowKind: WindowFixedDuration, WindowLength: 30 * 24 * time.Hour}
		reset, ok := tier.NextReset(anchor)
		require.True(t, ok)
		assert.Equal(t, anchor.Add(30*24*time.Hour), reset)
	})

	t.Run("unbounded", func(t *testing.T) {
		tier := Tier{ID: "premium", Unlimited: true, WindowKind: WindowUnbounded}
		_, ok := tier.NextReset(anchor)
		assert.False(t, ok)
	})
}

func TestNewCatalogValidation(t *testing.T) {
	valid := Tier{ID: "free", ClaimLimit: 2, WindowKind: WindowRollingMonth}

	tests := []struct {
		name        string
		defaultTier string
		tiers       []Tier
		wantCode    string
	}{
		{"empty tier id", "free", []Tier{{ID: "", ClaimLimit: 1}}, EINVALID},
		{"duplicate tier id", "free", []Tier{valid, valid}, ECONFLICT},
		{"negative claim limit", "free", []Tier{{ID: "free", ClaimLimit: -1}}, EINVALID},
		{"fixed duration without length", "free", []Tier{{ID: "free", ClaimLimit: 1, WindowKind: WindowFixedDuration}}, EINVALID},
		{"missing default tier", "missing", []Tier{valid}, EINVALID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.defaultTier, tt.tiers...)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, ErrorCode(err))
		})
	}
}

func TestCatalogLookup(t *testing.T) {
	catalog := DefaultCatalog()

	free, err := catalog.Get(TierFree)
	require.NoError(t, err)
	assert.Equal(t, 2, free.ClaimLimit)
	assert.Equal(t, free, catalog.Default())

	premium, err := catalog.Get(TierPremium)
	require.NoError(t, err)
	assert.True(t, premium.Unlimited)

	_, err = catalog.Get("gold")
	require.Error(t, err)
	assert.Equal(t, ENOTFOUND, ErrorCode(err))
}

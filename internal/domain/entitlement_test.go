package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEntitlementHasClaim(t *testing.T) {
	contentA := uuid.New()
	contentB := uuid.New()
	e := &Entitlement{
		Claims: []Claim{
			{ContentID: contentA, ClaimedAt: time.Now()},
		},
	}

	assert.True(t, e.HasClaim(contentA))
	assert.False(t, e.HasClaim(contentB))
	assert.Equal(t, 1, e.LiveCount())
}

func TestQuotaUsageRemaining(t *testing.T) {
	tests := []struct {
		name  string
		usage QuotaUsage
		want  int
	}{
		{"under limit", QuotaUsage{Used: 3, Limit: 10}, 7},
		{"at limit", QuotaUsage{Used: 10, Limit: 10}, 0},
		{"over limit after downgrade", QuotaUsage{Used: 8, Limit: 5}, 0},
		{"unlimited", QuotaUsage{Used: 40, Unlimited: true}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.usage.Remaining())
		})
	}
}

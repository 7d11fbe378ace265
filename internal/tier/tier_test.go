package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		meta    Metadata
		isAdmin bool
		want    Tier
	}{
		{"explicit promax", Metadata{Tier: "promax"}, false, ProMax},
		{"explicit pro", Metadata{Tier: "pro"}, false, Pro},
		{"explicit free", Metadata{Tier: "free"}, false, Free},
		{"legacy pro flag", Metadata{LegacyPro: true}, false, Pro},
		{"explicit tier beats legacy flag", Metadata{Tier: "free", LegacyPro: true}, false, Free},
		{"empty metadata", Metadata{}, false, Free},
		{"unknown tier string", Metadata{Tier: "platinum"}, false, Free},
		{"admin override", Metadata{}, true, ProMax},
		{"admin override beats explicit free", Metadata{Tier: "free"}, true, ProMax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.meta, tt.isAdmin))
		})
	}
}

func TestCanAdd(t *testing.T) {
	tests := []struct {
		name  string
		tier  Tier
		kind  Kind
		count int
		want  Check
	}{
		{"free sites at limit", Free, KindSites, 500, Check{Allowed: false, Remaining: 0, Limit: 500}},
		{"free sites under limit", Free, KindSites, 499, Check{Allowed: true, Remaining: 1, Limit: 500}},
		{"free sites over limit", Free, KindSites, 600, Check{Allowed: false, Remaining: 0, Limit: 500}},
		{"pro categories", Pro, KindCategories, 10, Check{Allowed: true, Remaining: 90, Limit: 100}},
		{"promax unlimited", ProMax, KindSites, 1000000, Check{Allowed: true, Remaining: Unlimited, Limit: Unlimited}},
		{"free tags at limit", Free, KindTags, 60, Check{Allowed: false, Remaining: 0, Limit: 60}},
		{"unknown tier treated as free", Tier("platinum"), KindSites, 0, Check{Allowed: true, Remaining: 500, Limit: 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanAdd(tt.tier, tt.kind, tt.count))
		})
	}
}

func TestLimit(t *testing.T) {
	assert.Equal(t, 500, Limit(Free, KindSites))
	assert.Equal(t, 200, Limit(Pro, KindTags))
	assert.Equal(t, Unlimited, Limit(ProMax, KindCategories))
}

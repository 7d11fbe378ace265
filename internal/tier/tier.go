// Package tier resolves subscription tiers and enforces their feature limits.
package tier

// Tier is a subscription level gating account limits.
type Tier string

const (
	Free   Tier = "free"
	Pro    Tier = "pro"
	ProMax Tier = "promax"
)

// Kind names a countable resource subject to tier limits.
type Kind string

const (
	KindSites      Kind = "sites"
	KindCategories Kind = "categories"
	KindTags       Kind = "tags"
)

// Unlimited marks a limit that is never reached.
const Unlimited = -1

var limits = map[Tier]map[Kind]int{
	Free:   {KindSites: 500, KindCategories: 30, KindTags: 60},
	Pro:    {KindSites: 2000, KindCategories: 100, KindTags: 200},
	ProMax: {KindSites: Unlimited, KindCategories: Unlimited, KindTags: Unlimited},
}

// Metadata is the tier-relevant slice of stored user metadata. LegacyPro is the
// old boolean flag kept for accounts created before tiers existed.
type Metadata struct {
	Tier      string
	LegacyPro bool
}

// Resolve maps stored metadata to a tier. Admins always resolve to promax. An
// explicit tier string wins over the legacy boolean; unknown values fall back
// to free.
func Resolve(meta Metadata, isAdmin bool) Tier {
	if isAdmin {
		return ProMax
	}
	switch Tier(meta.Tier) {
	case Free, Pro, ProMax:
		return Tier(meta.Tier)
	}
	if meta.LegacyPro {
		return Pro
	}
	return Free
}

// Check is the result of a limit check.
type Check struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
	Limit     int  `json:"limit"`
}

// CanAdd reports whether an account at the given tier may add one more item of
// the given kind, given its current count.
func CanAdd(t Tier, kind Kind, count int) Check {
	kindLimits, ok := limits[t]
	if !ok {
		kindLimits = limits[Free]
	}
	limit, ok := kindLimits[kind]
	if !ok {
		return Check{Allowed: false, Remaining: 0, Limit: 0}
	}
	if limit == Unlimited {
		return Check{Allowed: true, Remaining: Unlimited, Limit: Unlimited}
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Check{Allowed: count < limit, Remaining: remaining, Limit: limit}
}

// Limit returns the raw limit for a tier and kind (Unlimited for promax).
func Limit(t Tier, kind Kind) int {
	kindLimits, ok := limits[t]
	if !ok {
		kindLimits = limits[Free]
	}
	return kindLimits[kind]
}

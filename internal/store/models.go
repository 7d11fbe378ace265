package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Tier                  string
	LegacyPro             bool
	IsAdmin               bool
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	TOTPSecret            string
	MFAEnabled            bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Site is a saved bookmark. Categories and Tags carry the denormalized names;
// the join tables are the source of truth.
type Site struct {
	ID            string
	UserID        string
	Name          string
	URL           string
	NormalizedURL string
	Description   string
	Pricing       string
	Categories    []string
	Tags          []string
	IsFavorite    bool
	IsPinned      bool
	LastClickedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Pricing values accepted for a site.
const (
	PricingFullyFree = "fully_free"
	PricingPaid      = "paid"
	PricingFreeTrial = "free_trial"
	PricingFreemium  = "freemium"
)

type Category struct {
	ID        string
	UserID    string
	Name      string
	Color     string
	SiteCount int
	CreatedAt time.Time
}

type Tag struct {
	ID        string
	UserID    string
	Name      string
	Color     string
	SiteCount int
	CreatedAt time.Time
}

// ShareLink is a public read-only view onto an account's collection.
type ShareLink struct {
	ID             string
	Token          string
	UserID         string
	Title          string
	AccessCount    int
	LastAccessedAt *time.Time
	CreatedAt      time.Time
	RevokedAt      *time.Time
}

type AccountStats struct {
	SiteCount       int
	CategoryCount   int
	TagCount        int
	FavoriteCount   int
	PinnedCount     int
	ClickedLastWeek int
}

type AdminStats struct {
	UserCount     int
	SiteCount     int
	CategoryCount int
	TagCount      int
	TierCounts    map[string]int
}

// SiteFilter narrows ListSites. Nil pointer fields are not applied.
type SiteFilter struct {
	Category string
	Tag      string
	Pricing  string
	Query    string
	Favorite *bool
	Pinned   *bool
	Limit    int
	Offset   int
}

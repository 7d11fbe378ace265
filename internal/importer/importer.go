package importer

import (
	"context"
	"errors"
	"strings"
)

// BatchSize is the number of rows applied between progress reports and
// cancellation checks.
const BatchSize = 25

// ErrTierLimited aborts the apply loop; targets return it (wrapped with a
// user-facing message) when a create would exceed the account's tier limits.
var ErrTierLimited = errors.New("tier limit reached")

// Outcome classifies what applying one parsed site did.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
	OutcomeSkipped
)

// Target applies import rows to an account. Implementations perform tier
// checks and own-account duplicate resolution.
type Target interface {
	// EnsureCategory creates the category if missing, reporting whether it did.
	EnsureCategory(ctx context.Context, name string) (bool, error)
	// EnsureTag creates the tag if missing, reporting whether it did.
	EnsureTag(ctx context.Context, name string) (bool, error)
	// ApplySite inserts the site, or merges it into an existing row with the
	// same normalized URL.
	ApplySite(ctx context.Context, site ParsedSite) (Outcome, error)
}

// Progress is reported after every batch.
type Progress struct {
	Processed         int `json:"processed"`
	Total             int `json:"total"`
	Created           int `json:"created"`
	Updated           int `json:"updated"`
	Skipped           int `json:"skipped"`
	Errors            int `json:"errors"`
	CategoriesCreated int `json:"categoriesCreated"`
	TagsCreated       int `json:"tagsCreated"`
}

// Result is the final import report.
type Result struct {
	Progress
	Cancelled   bool   `json:"cancelled"`
	TierLimited bool   `json:"tierLimited"`
	Message     string `json:"message,omitempty"`
}

// Preview summarizes a parsed upload before it is applied.
type Preview struct {
	Sites               []ParsedSite        `json:"sites"`
	Total               int                 `json:"total"`
	UniqueCount         int                 `json:"uniqueCount"`
	DuplicateGroups     []Group[ParsedSite] `json:"duplicateGroups"`
	DomainGroups        []Group[ParsedSite] `json:"domainGroups"`
	ExistingDuplicates  int                 `json:"existingDuplicates"`
	CategorySuggestions []Group[string]     `json:"categorySuggestions"`
	TagSuggestions      []Group[string]     `json:"tagSuggestions"`
}

// BuildPreview groups duplicates within the upload (by normalized URL and by
// bare domain), counts collisions with URLs already in the account, and
// flags near-duplicate category/tag names.
func BuildPreview(sites []ParsedSite, existingURLs []string, categoryNames, tagNames []string) Preview {
	urlGroups := BuildGroups(sites, func(s ParsedSite) string { return NormalizeURL(s.URL) })
	domainGroups := BuildGroups(sites, func(s ParsedSite) string { return ExtractDomain(s.URL) })

	existing := make(map[string]struct{}, len(existingURLs))
	for _, raw := range existingURLs {
		if key := NormalizeURL(raw); key != "" {
			existing[key] = struct{}{}
		}
	}

	existingDuplicates := 0
	seen := make(map[string]struct{})
	unique := 0
	for _, site := range sites {
		key := NormalizeURL(site.URL)
		if key == "" {
			continue
		}
		if _, collides := existing[key]; collides {
			existingDuplicates++
		}
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			unique++
		}
	}

	// Near-duplicate names across what the upload would create and what the
	// account already has. Dedupe by exact spelling only: distinct spellings
	// that fold to the same normalized name are exactly what the suggestion
	// groups exist to surface.
	categories := appendUnique(categoryNames, collectSpellings(sites, func(s ParsedSite) []string { return s.Categories }))
	tags := appendUnique(tagNames, collectSpellings(sites, func(s ParsedSite) []string { return s.Tags }))

	return Preview{
		Sites:               sites,
		Total:               len(sites),
		UniqueCount:         unique,
		DuplicateGroups:     urlGroups,
		DomainGroups:        domainGroups,
		ExistingDuplicates:  existingDuplicates,
		CategorySuggestions: BuildGroups(categories, NormalizeName),
		TagSuggestions:      BuildGroups(tags, NormalizeName),
	}
}

// Run applies parsed sites to the target in batches. Missing categories and
// tags are created first so every site insert links against existing rows.
// ctx cancellation is honored between batches: rows already handed to the
// target complete, nothing further is issued. A tier-limit error from the
// target stops the run with TierLimited set; any other per-row error is
// counted and the run continues.
func Run(ctx context.Context, target Target, sites []ParsedSite, report func(Progress)) Result {
	result := Result{Progress: Progress{Total: len(sites)}}

	emit := func() {
		if report != nil {
			report(result.Progress)
		}
	}

	categories := collectNames(sites, func(s ParsedSite) []string { return s.Categories })
	tags := collectNames(sites, func(s ParsedSite) []string { return s.Tags })

	ensure := func(names []string, fn func(context.Context, string) (bool, error), created *int) bool {
		for start := 0; start < len(names); start += BatchSize {
			if ctx.Err() != nil {
				result.Cancelled = true
				return false
			}
			end := min(start+BatchSize, len(names))
			for _, name := range names[start:end] {
				ok, err := fn(ctx, name)
				if errors.Is(err, ErrTierLimited) {
					result.TierLimited = true
					result.Message = tierMessage(err)
					return false
				}
				if err != nil {
					result.Errors++
					continue
				}
				if ok {
					*created++
				}
			}
			emit()
		}
		return true
	}

	if !ensure(categories, target.EnsureCategory, &result.CategoriesCreated) {
		return result
	}
	if !ensure(tags, target.EnsureTag, &result.TagsCreated) {
		return result
	}

	for start := 0; start < len(sites); start += BatchSize {
		if ctx.Err() != nil {
			result.Cancelled = true
			return result
		}
		end := min(start+BatchSize, len(sites))
		for _, site := range sites[start:end] {
			outcome, err := target.ApplySite(ctx, site)
			result.Processed++
			if errors.Is(err, ErrTierLimited) {
				result.TierLimited = true
				result.Message = tierMessage(err)
				emit()
				return result
			}
			if err != nil {
				result.Errors++
				continue
			}
			switch outcome {
			case OutcomeCreated:
				result.Created++
			case OutcomeUpdated:
				result.Updated++
			case OutcomeSkipped:
				result.Skipped++
			}
		}
		emit()
	}

	return result
}

func tierMessage(err error) string {
	if msg := err.Error(); msg != ErrTierLimited.Error() {
		return msg
	}
	return "Import stopped: your plan's limit was reached. Upgrade to import the rest."
}

// collectNames gathers distinct (case-insensitively) names across all sites,
// in first-seen order.
func collectNames(sites []ParsedSite, pick func(ParsedSite) []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, site := range sites {
		for _, name := range pick(site) {
			key := NormalizeName(name)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// collectSpellings gathers names deduped by exact spelling, preserving the
// distinct spellings that NormalizeName would fold together.
func collectSpellings(sites []ParsedSite, pick func(ParsedSite) []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, site := range sites {
		for _, name := range pick(site) {
			if _, dup := seen[name]; dup || strings.TrimSpace(name) == "" {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

func appendUnique(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	out := make([]string, 0, len(base)+len(extra))
	for _, name := range base {
		if _, dup := seen[name]; dup || strings.TrimSpace(name) == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, name := range extra {
		if _, dup := seen[name]; dup || strings.TrimSpace(name) == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

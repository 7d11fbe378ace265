package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeTarget struct {
	categories map[string]bool
	tags       map[string]bool
	applied    []string

	siteLimit int
	failURLs  map[string]bool
	existing  map[string]bool
	cancelAt  int
	cancel    context.CancelFunc
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		categories: make(map[string]bool),
		tags:       make(map[string]bool),
		failURLs:   make(map[string]bool),
		existing:   make(map[string]bool),
		siteLimit:  -1,
	}
}

func (f *fakeTarget) EnsureCategory(_ context.Context, name string) (bool, error) {
	key := NormalizeName(name)
	if f.categories[key] {
		return false, nil
	}
	f.categories[key] = true
	return true, nil
}

func (f *fakeTarget) EnsureTag(_ context.Context, name string) (bool, error) {
	key := NormalizeName(name)
	if f.tags[key] {
		return false, nil
	}
	f.tags[key] = true
	return true, nil
}

func (f *fakeTarget) ApplySite(_ context.Context, site ParsedSite) (Outcome, error) {
	if f.cancel != nil && len(f.applied) == f.cancelAt {
		f.cancel()
	}
	if f.failURLs[site.URL] {
		return 0, errors.New("boom")
	}
	if f.siteLimit >= 0 && len(f.applied) >= f.siteLimit {
		return 0, fmt.Errorf("%w: free plan allows 500 sites", ErrTierLimited)
	}
	key := NormalizeURL(site.URL)
	if f.existing[key] {
		return OutcomeUpdated, nil
	}
	f.existing[key] = true
	f.applied = append(f.applied, site.URL)
	return OutcomeCreated, nil
}

func manySites(n int) []ParsedSite {
	sites := make([]ParsedSite, 0, n)
	for i := 0; i < n; i++ {
		sites = append(sites, ParsedSite{
			Name: fmt.Sprintf("Site %d", i),
			URL:  fmt.Sprintf("https://example%d.com", i),
		})
	}
	return sites
}

func TestRunCountsOutcomes(t *testing.T) {
	target := newFakeTarget()
	target.existing["known.com"] = true
	target.failURLs["https://broken.com"] = true

	sites := []ParsedSite{
		{Name: "Fresh", URL: "https://fresh.com", Categories: []string{"Dev"}, Tags: []string{"go", "GO"}},
		{Name: "Known", URL: "https://known.com"},
		{Name: "Broken", URL: "https://broken.com"},
	}

	result := Run(context.Background(), target, sites, nil)
	if result.Created != 1 || result.Updated != 1 || result.Errors != 1 {
		t.Errorf("unexpected counts: %+v", result.Progress)
	}
	if result.Processed != 3 {
		t.Errorf("expected all rows processed, got %d", result.Processed)
	}
	if result.CategoriesCreated != 1 {
		t.Errorf("expected one category created, got %d", result.CategoriesCreated)
	}
	// "go" and "GO" fold to the same tag.
	if result.TagsCreated != 1 {
		t.Errorf("expected one tag created, got %d", result.TagsCreated)
	}
	if result.Cancelled || result.TierLimited {
		t.Errorf("unexpected flags: %+v", result)
	}
}

func TestRunReportsProgressPerBatch(t *testing.T) {
	target := newFakeTarget()
	sites := manySites(BatchSize*2 + 3)

	var reports []Progress
	result := Run(context.Background(), target, sites, func(p Progress) {
		reports = append(reports, p)
	})
	if result.Created != len(sites) {
		t.Fatalf("expected %d created, got %d", len(sites), result.Created)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 site batches reported, got %d", len(reports))
	}
	if last := reports[len(reports)-1]; last.Processed != len(sites) {
		t.Errorf("final report should cover all rows: %+v", last)
	}
}

func TestRunTierLimitStops(t *testing.T) {
	target := newFakeTarget()
	target.siteLimit = BatchSize + 5
	sites := manySites(BatchSize * 3)

	result := Run(context.Background(), target, sites, nil)
	if !result.TierLimited {
		t.Fatal("expected TierLimited")
	}
	if result.Message == "" {
		t.Error("expected a user-facing message")
	}
	if result.Created != BatchSize+5 {
		t.Errorf("expected %d created before the limit, got %d", BatchSize+5, result.Created)
	}
	if result.Processed >= len(sites) {
		t.Error("run should stop at the limit, not process everything")
	}
}

func TestRunCancellationBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	target := newFakeTarget()
	target.cancel = cancel
	target.cancelAt = 2
	sites := manySites(BatchSize * 3)

	result := Run(ctx, target, sites, nil)
	if !result.Cancelled {
		t.Fatal("expected Cancelled")
	}
	// The batch already issued completes; later batches never start.
	if result.Processed != BatchSize {
		t.Errorf("expected the in-flight batch to finish, processed=%d", result.Processed)
	}
}

func TestBuildPreview(t *testing.T) {
	sites := []ParsedSite{
		{Name: "One", URL: "https://example.com/page"},
		{Name: "Two", URL: "http://www.example.com/page/"},
		{Name: "Three", URL: "https://example.com/other"},
		{Name: "Four", URL: "https://else.com", Categories: []string{"web-dev"}},
	}
	existing := []string{"https://else.com/"}
	preview := BuildPreview(sites, existing, []string{"Web Dev"}, nil)

	if preview.Total != 4 {
		t.Errorf("Total = %d", preview.Total)
	}
	if preview.UniqueCount != 3 {
		t.Errorf("UniqueCount = %d, want 3", preview.UniqueCount)
	}
	if len(preview.DuplicateGroups) != 1 || preview.DuplicateGroups[0].Key != "example.com/page" {
		t.Errorf("unexpected duplicate groups: %+v", preview.DuplicateGroups)
	}
	if len(preview.DomainGroups) != 1 || preview.DomainGroups[0].Key != "example.com" {
		t.Errorf("unexpected domain groups: %+v", preview.DomainGroups)
	}
	if preview.ExistingDuplicates != 1 {
		t.Errorf("ExistingDuplicates = %d, want 1", preview.ExistingDuplicates)
	}
	// "Web Dev" (account) and "web-dev" (upload) fold to the same name.
	if len(preview.CategorySuggestions) != 1 || preview.CategorySuggestions[0].Key != "webdev" {
		t.Errorf("unexpected category suggestions: %+v", preview.CategorySuggestions)
	}
}

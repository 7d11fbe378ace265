package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"sitekeeper/api/internal/export"
	"sitekeeper/api/internal/importer"
	"sitekeeper/api/internal/store"
	"sitekeeper/api/internal/tier"
	"sitekeeper/api/internal/util"
)

// ImportPreview parses an upload and reports duplicate groups before anything
// is written.
func (s *Service) ImportPreview(ctx context.Context, session Session, filename string, data []byte, source string) (importer.Preview, error) {
	sites, err := s.parseUpload(filename, data, source)
	if err != nil {
		return importer.Preview{}, err
	}

	existing, err := s.store.ListSites(ctx, session.UserID, store.SiteFilter{})
	if err != nil {
		return importer.Preview{}, err
	}
	existingURLs := make([]string, 0, len(existing))
	for _, site := range existing {
		existingURLs = append(existingURLs, site.NormalizedURL)
	}

	categories, err := s.store.ListCategories(ctx, session.UserID)
	if err != nil {
		return importer.Preview{}, err
	}
	categoryNames := make([]string, 0, len(categories))
	for _, c := range categories {
		categoryNames = append(categoryNames, c.Name)
	}

	tags, err := s.store.ListTags(ctx, session.UserID)
	if err != nil {
		return importer.Preview{}, err
	}
	tagNames := make([]string, 0, len(tags))
	for _, t := range tags {
		tagNames = append(tagNames, t.Name)
	}

	return importer.BuildPreview(sites, existingURLs, categoryNames, tagNames), nil
}

// Import parses an upload and applies it to the account in batches.
func (s *Service) Import(ctx context.Context, session Session, filename string, data []byte, source string) (importer.Result, error) {
	sites, err := s.parseUpload(filename, data, source)
	if err != nil {
		return importer.Result{}, err
	}

	target, err := s.newImportTarget(ctx, session)
	if err != nil {
		return importer.Result{}, err
	}

	result := importer.Run(ctx, target, sites, func(p importer.Progress) {
		s.logger.Debug("import progress",
			zap.String("user_id", session.UserID),
			zap.Int("processed", p.Processed),
			zap.Int("total", p.Total),
		)
	})

	s.logger.Info("import finished",
		zap.String("user_id", session.UserID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors),
		zap.Bool("tier_limited", result.TierLimited),
		zap.Bool("cancelled", result.Cancelled),
	)
	return result, nil
}

func (s *Service) parseUpload(filename string, data []byte, source string) ([]importer.ParsedSite, error) {
	format, err := importer.Detect(filename, data, source)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	sites, err := importer.Parse(format, data)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	if len(sites) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "no sites found in upload", nil)
	}
	return sites, nil
}

// importTarget applies parsed rows to one account, enforcing tier limits with
// counters seeded once at the start of the run.
type importTarget struct {
	svc     *Service
	session Session

	siteCount     int
	categoryCount int
	tagCount      int
}

func (s *Service) newImportTarget(ctx context.Context, session Session) (*importTarget, error) {
	siteCount, err := s.store.CountSites(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	categoryCount, err := s.store.CountCategories(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	tagCount, err := s.store.CountTags(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	return &importTarget{
		svc:           s,
		session:       session,
		siteCount:     siteCount,
		categoryCount: categoryCount,
		tagCount:      tagCount,
	}, nil
}

func (t *importTarget) EnsureCategory(ctx context.Context, name string) (bool, error) {
	if _, err := t.svc.store.FindCategoryByName(ctx, t.session.UserID, name); err == nil {
		return false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	if check := tier.CanAdd(t.session.Tier, tier.KindCategories, t.categoryCount); !check.Allowed {
		return false, fmt.Errorf("%w: your plan allows %d categories", importer.ErrTierLimited, check.Limit)
	}
	if err := t.svc.store.InsertCategory(ctx, store.Category{
		ID:     util.NewID("cat"),
		UserID: t.session.UserID,
		Name:   name,
	}); err != nil {
		if store.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	t.categoryCount++
	return true, nil
}

func (t *importTarget) EnsureTag(ctx context.Context, name string) (bool, error) {
	if _, err := t.svc.store.FindTagByName(ctx, t.session.UserID, name); err == nil {
		return false, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	if check := tier.CanAdd(t.session.Tier, tier.KindTags, t.tagCount); !check.Allowed {
		return false, fmt.Errorf("%w: your plan allows %d tags", importer.ErrTierLimited, check.Limit)
	}
	if err := t.svc.store.InsertTag(ctx, store.Tag{
		ID:     util.NewID("tag"),
		UserID: t.session.UserID,
		Name:   name,
	}); err != nil {
		if store.IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	t.tagCount++
	return true, nil
}

func (t *importTarget) ApplySite(ctx context.Context, parsed importer.ParsedSite) (importer.Outcome, error) {
	normalized := importer.NormalizeURL(parsed.URL)
	if normalized == "" {
		return importer.OutcomeSkipped, nil
	}

	existing, err := t.svc.store.FindSiteByNormalizedURL(ctx, t.session.UserID, normalized)
	if err == nil {
		return t.mergeSite(ctx, existing, parsed)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	if check := tier.CanAdd(t.session.Tier, tier.KindSites, t.siteCount); !check.Allowed {
		return 0, fmt.Errorf("%w: your plan allows %d sites", importer.ErrTierLimited, check.Limit)
	}

	site := store.Site{
		ID:            util.NewID("site"),
		UserID:        t.session.UserID,
		Name:          parsed.Name,
		URL:           parsed.URL,
		NormalizedURL: normalized,
		Description:   parsed.Description,
		Pricing:       normalizePricing(parsed.Pricing),
		Categories:    parsed.Categories,
		Tags:          parsed.Tags,
		IsFavorite:    parsed.IsFavorite,
		IsPinned:      parsed.IsPinned,
	}
	if err := t.svc.store.InsertSite(ctx, site); err != nil {
		if store.IsUniqueViolation(err) {
			return importer.OutcomeSkipped, nil
		}
		return 0, err
	}
	t.siteCount++

	if created, err := t.svc.store.GetSite(ctx, t.session.UserID, site.ID); err == nil {
		t.svc.indexSite(created)
	}
	return importer.OutcomeCreated, nil
}

// mergeSite folds an imported row into an existing site: labels are unioned
// and an empty description is filled. If nothing changes the row is skipped.
func (t *importTarget) mergeSite(ctx context.Context, existing store.Site, parsed importer.ParsedSite) (importer.Outcome, error) {
	merged := existing
	changed := false

	if appended, grew := unionNames(existing.Categories, parsed.Categories); grew {
		merged.Categories = appended
		changed = true
	}
	if appended, grew := unionNames(existing.Tags, parsed.Tags); grew {
		merged.Tags = appended
		changed = true
	}
	if existing.Description == "" && parsed.Description != "" {
		merged.Description = parsed.Description
		changed = true
	}

	if !changed {
		return importer.OutcomeSkipped, nil
	}
	if err := t.svc.store.UpdateSite(ctx, merged); err != nil {
		return 0, err
	}
	if updated, err := t.svc.store.GetSite(ctx, t.session.UserID, existing.ID); err == nil {
		t.svc.indexSite(updated)
	}
	return importer.OutcomeUpdated, nil
}

func unionNames(base, extra []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(base))
	for _, name := range base {
		seen[importer.NormalizeName(name)] = struct{}{}
	}
	out := append([]string(nil), base...)
	grew := false
	for _, name := range extra {
		key := importer.NormalizeName(name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
		grew = true
	}
	return out, grew
}

func normalizePricing(raw string) string {
	if _, ok := allowedPricing[raw]; ok {
		return raw
	}
	return store.PricingFullyFree
}

// Export renders the account's collection in the requested format and
// archives a copy to object storage when configured.
func (s *Service) Export(ctx context.Context, session Session, format export.Format) (*export.Result, error) {
	sites, err := s.store.ListSites(ctx, session.UserID, store.SiteFilter{})
	if err != nil {
		return nil, err
	}

	rows := make([]export.Site, 0, len(sites))
	for _, site := range sites {
		rows = append(rows, export.Site{
			Name:        site.Name,
			URL:         site.URL,
			Description: site.Description,
			Pricing:     site.Pricing,
			Categories:  site.Categories,
			Tags:        site.Tags,
			IsFavorite:  site.IsFavorite,
			IsPinned:    site.IsPinned,
			CreatedAt:   site.CreatedAt,
		})
	}

	result, err := export.Export(export.Request{
		Format:      format,
		Title:       "Sitekeeper export",
		DisplayName: session.DisplayName,
	}, rows)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unsupported export format", nil)
		}
		if errors.Is(err, export.ErrPDFDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil)
		}
		return nil, err
	}

	if s.blob != nil {
		if key, err := s.blob.PutExport(ctx, session.UserID, result.Filename, result.MimeType, result.Data); err != nil {
			s.logger.Warn("archive export", zap.Error(err))
		} else {
			s.logger.Info("export archived", zap.String("key", key))
		}
	}

	return result, nil
}

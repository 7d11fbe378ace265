package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"sitekeeper/api/internal/importer"
	"sitekeeper/api/internal/search"
	"sitekeeper/api/internal/store"
	"sitekeeper/api/internal/tier"
	"sitekeeper/api/internal/util"
)

// SiteInput carries a create or update request for a site.
type SiteInput struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Pricing     string   `json:"pricing"`
	Categories  []string `json:"categories"`
	Tags        []string `json:"tags"`
	IsFavorite  bool     `json:"isFavorite"`
	IsPinned    bool     `json:"isPinned"`
}

var allowedPricing = map[string]struct{}{
	store.PricingFullyFree: {},
	store.PricingPaid:      {},
	store.PricingFreeTrial: {},
	store.PricingFreemium:  {},
}

func validateSiteInput(input SiteInput) (SiteInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.URL = strings.TrimSpace(input.URL)
	input.Description = strings.TrimSpace(input.Description)
	input.Pricing = strings.TrimSpace(input.Pricing)

	if input.URL == "" {
		return input, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "url is required", nil)
	}
	if input.Name == "" {
		input.Name = importer.ExtractDomain(input.URL)
	}
	if input.Pricing == "" {
		input.Pricing = store.PricingFullyFree
	}
	if _, ok := allowedPricing[input.Pricing]; !ok {
		return input, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown pricing value", map[string]any{"pricing": input.Pricing})
	}
	return input, nil
}

func sitePayload(site store.Site) map[string]any {
	categories := site.Categories
	if categories == nil {
		categories = []string{}
	}
	tags := site.Tags
	if tags == nil {
		tags = []string{}
	}
	payload := map[string]any{
		"id":          site.ID,
		"name":        site.Name,
		"url":         site.URL,
		"description": site.Description,
		"pricing":     site.Pricing,
		"categories":  categories,
		"tags":        tags,
		"isFavorite":  site.IsFavorite,
		"isPinned":    site.IsPinned,
		"createdAt":   site.CreatedAt,
		"updatedAt":   site.UpdatedAt,
	}
	if site.LastClickedAt != nil {
		payload["lastClickedAt"] = site.LastClickedAt
	}
	return payload
}

func (s *Service) ListSites(ctx context.Context, session Session, filter store.SiteFilter) ([]map[string]any, error) {
	sites, err := s.store.ListSites(ctx, session.UserID, filter)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(sites))
	for _, site := range sites {
		payload = append(payload, sitePayload(site))
	}
	return payload, nil
}

func (s *Service) GetSite(ctx context.Context, session Session, siteID string) (map[string]any, error) {
	site, err := s.store.GetSite(ctx, session.UserID, siteID)
	if err != nil {
		return nil, err
	}
	return sitePayload(site), nil
}

func (s *Service) CreateSite(ctx context.Context, session Session, input SiteInput) (map[string]any, error) {
	input, err := validateSiteInput(input)
	if err != nil {
		return nil, err
	}

	count, err := s.store.CountSites(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if check := tier.CanAdd(session.Tier, tier.KindSites, count); !check.Allowed {
		return nil, domainError(http.StatusForbidden, "TIER_LIMIT", "Site limit reached for your plan", check)
	}

	normalized := importer.NormalizeURL(input.URL)
	if existing, err := s.store.FindSiteByNormalizedURL(ctx, session.UserID, normalized); err == nil {
		return nil, domainError(http.StatusConflict, "DUPLICATE_URL", "You already saved this URL", map[string]any{"existingId": existing.ID})
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	site := store.Site{
		ID:            util.NewID("site"),
		UserID:        session.UserID,
		Name:          input.Name,
		URL:           input.URL,
		NormalizedURL: normalized,
		Description:   input.Description,
		Pricing:       input.Pricing,
		Categories:    input.Categories,
		Tags:          input.Tags,
		IsFavorite:    input.IsFavorite,
		IsPinned:      input.IsPinned,
	}
	if err := s.store.InsertSite(ctx, site); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, domainError(http.StatusConflict, "DUPLICATE_URL", "You already saved this URL", nil)
		}
		return nil, err
	}

	created, err := s.store.GetSite(ctx, session.UserID, site.ID)
	if err != nil {
		return nil, err
	}
	s.indexSite(created)
	return sitePayload(created), nil
}

func (s *Service) UpdateSite(ctx context.Context, session Session, siteID string, input SiteInput) (map[string]any, error) {
	input, err := validateSiteInput(input)
	if err != nil {
		return nil, err
	}

	current, err := s.store.GetSite(ctx, session.UserID, siteID)
	if err != nil {
		return nil, err
	}

	normalized := importer.NormalizeURL(input.URL)
	if normalized != current.NormalizedURL {
		if existing, err := s.store.FindSiteByNormalizedURL(ctx, session.UserID, normalized); err == nil && existing.ID != siteID {
			return nil, domainError(http.StatusConflict, "DUPLICATE_URL", "You already saved this URL", map[string]any{"existingId": existing.ID})
		} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	site := store.Site{
		ID:            siteID,
		UserID:        session.UserID,
		Name:          input.Name,
		URL:           input.URL,
		NormalizedURL: normalized,
		Description:   input.Description,
		Pricing:       input.Pricing,
		Categories:    input.Categories,
		Tags:          input.Tags,
		IsFavorite:    input.IsFavorite,
		IsPinned:      input.IsPinned,
	}
	if err := s.store.UpdateSite(ctx, site); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, domainError(http.StatusConflict, "DUPLICATE_URL", "You already saved this URL", nil)
		}
		return nil, err
	}

	updated, err := s.store.GetSite(ctx, session.UserID, siteID)
	if err != nil {
		return nil, err
	}
	s.indexSite(updated)
	return sitePayload(updated), nil
}

func (s *Service) DeleteSite(ctx context.Context, session Session, siteID string) error {
	if err := s.store.DeleteSite(ctx, session.UserID, siteID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteSite(siteID)
	}
	return nil
}

func (s *Service) SetFavorite(ctx context.Context, session Session, siteID string, favorite bool) (map[string]any, error) {
	if err := s.store.SetFavorite(ctx, session.UserID, siteID, favorite); err != nil {
		return nil, err
	}
	return s.GetSite(ctx, session, siteID)
}

func (s *Service) SetPinned(ctx context.Context, session Session, siteID string, pinned bool) (map[string]any, error) {
	if err := s.store.SetPinned(ctx, session.UserID, siteID, pinned); err != nil {
		return nil, err
	}
	return s.GetSite(ctx, session, siteID)
}

// RecordClick bumps the click counter and visit timestamp for a site.
func (s *Service) RecordClick(ctx context.Context, session Session, siteID string) error {
	return s.store.RecordClick(ctx, session.UserID, siteID)
}

// Rediscover surfaces unpinned sites that have not been clicked recently,
// oldest first, so users can revisit or prune them.
func (s *Service) Rediscover(ctx context.Context, session Session, days, limit int) ([]map[string]any, error) {
	if days <= 0 {
		days = 30
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	sites, err := s.store.ListStaleSites(ctx, session.UserID, cutoff, limit)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(sites))
	for _, site := range sites {
		payload = append(payload, sitePayload(site))
	}
	return payload, nil
}

func (s *Service) indexSite(site store.Site) {
	if s.search == nil {
		return
	}
	s.search.IndexSite(search.SiteRecord{
		ID:          site.ID,
		UserID:      site.UserID,
		Name:        site.Name,
		URL:         site.URL,
		Description: site.Description,
		Pricing:     site.Pricing,
		Categories:  site.Categories,
		Tags:        site.Tags,
		IsFavorite:  site.IsFavorite,
		IsPinned:    site.IsPinned,
	})
}

// Search runs full-text search when the search service is wired, falling back
// to a plain store query otherwise.
func (s *Service) Search(ctx context.Context, session Session, q search.Query) (search.Response, error) {
	q.UserID = session.UserID
	if s.search != nil {
		return s.search.Search(q), nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	sites, err := s.store.ListSites(ctx, session.UserID, store.SiteFilter{
		Query:    q.Text,
		Category: q.FilterCategory,
		Tag:      q.FilterTag,
		Pricing:  q.FilterPricing,
		Limit:    limit,
		Offset:   q.Offset,
	})
	if err != nil {
		s.logger.Warn("search fallback", zap.Error(err))
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	results := make([]search.Result, 0, len(sites))
	for _, site := range sites {
		results = append(results, search.Result{
			ID:         site.ID,
			Name:       site.Name,
			URL:        site.URL,
			Snippet:    site.Description,
			Pricing:    site.Pricing,
			Categories: site.Categories,
			Tags:       site.Tags,
			IsFavorite: site.IsFavorite,
			IsPinned:   site.IsPinned,
		})
	}
	return search.Response{Results: results, Total: len(results), Query: q.Text}, nil
}

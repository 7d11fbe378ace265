package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sitekeeper/api/internal/store"
	"sitekeeper/api/internal/util"
)

// AccountStats returns usage counters for the account. A storage failure
// degrades to zeroed stats instead of breaking the dashboard.
func (s *Service) AccountStats(ctx context.Context, session Session) map[string]any {
	stats, err := s.store.AccountStats(ctx, session.UserID)
	if err != nil {
		s.logger.Warn("account stats", zap.String("user_id", session.UserID), zap.Error(err))
		stats = store.AccountStats{}
	}
	return map[string]any{
		"sites":           stats.SiteCount,
		"categories":      stats.CategoryCount,
		"tags":            stats.TagCount,
		"favorites":       stats.FavoriteCount,
		"pinned":          stats.PinnedCount,
		"clickedLastWeek": stats.ClickedLastWeek,
		"tier":            session.Tier,
	}
}

// AdminStats returns instance-wide counters. Admin only.
func (s *Service) AdminStats(ctx context.Context, session Session) (map[string]any, error) {
	if !session.IsAdmin {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	stats, err := s.store.AdminStats(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"users":      stats.UserCount,
		"sites":      stats.SiteCount,
		"categories": stats.CategoryCount,
		"tags":       stats.TagCount,
		"tiers":      stats.TierCounts,
	}, nil
}

// ResetAccount deletes all of the account's sites, categories, tags and
// share links in one transaction. The user row itself stays.
func (s *Service) ResetAccount(ctx context.Context, session Session) error {
	if err := s.store.ResetAccount(ctx, session.UserID); err != nil {
		return err
	}
	if s.search != nil {
		// Stale index entries are tolerated; results are filtered by user
		// and re-created on the next write.
		s.logger.Info("account reset, search index may lag", zap.String("user_id", session.UserID))
	}
	return nil
}

func shareLinkPayload(link store.ShareLink) map[string]any {
	payload := map[string]any{
		"id":          link.ID,
		"token":       link.Token,
		"title":       link.Title,
		"accessCount": link.AccessCount,
		"createdAt":   link.CreatedAt,
		"revoked":     link.RevokedAt != nil,
	}
	if link.LastAccessedAt != nil {
		payload["lastAccessedAt"] = link.LastAccessedAt
	}
	return payload
}

// CreateShareLink mints a public read-only link to the account's collection.
func (s *Service) CreateShareLink(ctx context.Context, session Session, title string) (map[string]any, error) {
	if title == "" {
		title = session.DisplayName + "'s sites"
	}
	link := store.ShareLink{
		ID:     util.NewID("share"),
		Token:  util.NewID("") + util.NewID(""),
		UserID: session.UserID,
		Title:  title,
	}
	if err := s.store.CreateShareLink(ctx, link); err != nil {
		return nil, err
	}
	created := shareLinkPayload(link)
	created["createdAt"] = time.Now().UTC()
	return created, nil
}

func (s *Service) ListShareLinks(ctx context.Context, session Session) ([]map[string]any, error) {
	links, err := s.store.ListShareLinks(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(links))
	for _, link := range links {
		payload = append(payload, shareLinkPayload(link))
	}
	return payload, nil
}

func (s *Service) RevokeShareLink(ctx context.Context, session Session, linkID string) error {
	return s.store.RevokeShareLink(ctx, session.UserID, linkID)
}

// PublicShare resolves a share token to the shared collection. Revoked and
// unknown tokens both read as not found.
func (s *Service) PublicShare(ctx context.Context, token string) (map[string]any, error) {
	link, err := s.store.GetShareLinkByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Share link not found", nil)
		}
		return nil, err
	}
	if link.RevokedAt != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Share link not found", nil)
	}

	if err := s.store.TouchShareLink(ctx, link.ID); err != nil {
		s.logger.Warn("touch share link", zap.String("link_id", link.ID), zap.Error(err))
	}

	sites, err := s.store.ListSites(ctx, link.UserID, store.SiteFilter{})
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(sites))
	for _, site := range sites {
		items = append(items, sitePayload(site))
	}

	return map[string]any{
		"title": link.Title,
		"sites": items,
		"count": len(items),
	}, nil
}

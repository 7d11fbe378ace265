package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"sitekeeper/api/internal/store"
	"sitekeeper/api/internal/tier"
	"sitekeeper/api/internal/util"
)

// NameInput is the body for category and tag create/update requests.
type NameInput struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func categoryPayload(item store.Category) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"name":      item.Name,
		"color":     item.Color,
		"siteCount": item.SiteCount,
		"createdAt": item.CreatedAt,
	}
}

func tagPayload(item store.Tag) map[string]any {
	return map[string]any{
		"id":        item.ID,
		"name":      item.Name,
		"color":     item.Color,
		"siteCount": item.SiteCount,
		"createdAt": item.CreatedAt,
	}
}

func (s *Service) ListCategories(ctx context.Context, session Session) ([]map[string]any, error) {
	items, err := s.store.ListCategories(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, categoryPayload(item))
	}
	return payload, nil
}

func (s *Service) CreateCategory(ctx context.Context, session Session, input NameInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	if existing, err := s.store.FindCategoryByName(ctx, session.UserID, name); err == nil {
		return nil, domainError(http.StatusConflict, "DUPLICATE_NAME", "A category with this name already exists", map[string]any{"existingId": existing.ID})
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	count, err := s.store.CountCategories(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if check := tier.CanAdd(session.Tier, tier.KindCategories, count); !check.Allowed {
		return nil, domainError(http.StatusForbidden, "TIER_LIMIT", "Category limit reached for your plan", check)
	}

	item := store.Category{
		ID:     util.NewID("cat"),
		UserID: session.UserID,
		Name:   name,
		Color:  strings.TrimSpace(input.Color),
	}
	if err := s.store.InsertCategory(ctx, item); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, domainError(http.StatusConflict, "DUPLICATE_NAME", "A category with this name already exists", nil)
		}
		return nil, err
	}
	return categoryPayload(item), nil
}

func (s *Service) UpdateCategory(ctx context.Context, session Session, categoryID string, input NameInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if existing, err := s.store.FindCategoryByName(ctx, session.UserID, name); err == nil && existing.ID != categoryID {
		return domainError(http.StatusConflict, "DUPLICATE_NAME", "A category with this name already exists", map[string]any{"existingId": existing.ID})
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if err := s.store.UpdateCategory(ctx, session.UserID, categoryID, name, strings.TrimSpace(input.Color)); err != nil {
		if store.IsUniqueViolation(err) {
			return domainError(http.StatusConflict, "DUPLICATE_NAME", "A category with this name already exists", nil)
		}
		return err
	}
	return nil
}

// DeleteCategory removes the category; linked sites keep their other labels.
func (s *Service) DeleteCategory(ctx context.Context, session Session, categoryID string) error {
	return s.store.DeleteCategory(ctx, session.UserID, categoryID)
}

func (s *Service) ListTags(ctx context.Context, session Session) ([]map[string]any, error) {
	items, err := s.store.ListTags(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, tagPayload(item))
	}
	return payload, nil
}

func (s *Service) CreateTag(ctx context.Context, session Session, input NameInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	if existing, err := s.store.FindTagByName(ctx, session.UserID, name); err == nil {
		return nil, domainError(http.StatusConflict, "DUPLICATE_NAME", "A tag with this name already exists", map[string]any{"existingId": existing.ID})
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	count, err := s.store.CountTags(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if check := tier.CanAdd(session.Tier, tier.KindTags, count); !check.Allowed {
		return nil, domainError(http.StatusForbidden, "TIER_LIMIT", "Tag limit reached for your plan", check)
	}

	item := store.Tag{
		ID:     util.NewID("tag"),
		UserID: session.UserID,
		Name:   name,
		Color:  strings.TrimSpace(input.Color),
	}
	if err := s.store.InsertTag(ctx, item); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, domainError(http.StatusConflict, "DUPLICATE_NAME", "A tag with this name already exists", nil)
		}
		return nil, err
	}
	return tagPayload(item), nil
}

func (s *Service) UpdateTag(ctx context.Context, session Session, tagID string, input NameInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if existing, err := s.store.FindTagByName(ctx, session.UserID, name); err == nil && existing.ID != tagID {
		return domainError(http.StatusConflict, "DUPLICATE_NAME", "A tag with this name already exists", map[string]any{"existingId": existing.ID})
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if err := s.store.UpdateTag(ctx, session.UserID, tagID, name, strings.TrimSpace(input.Color)); err != nil {
		if store.IsUniqueViolation(err) {
			return domainError(http.StatusConflict, "DUPLICATE_NAME", "A tag with this name already exists", nil)
		}
		return err
	}
	return nil
}

func (s *Service) DeleteTag(ctx context.Context, session Session, tagID string) error {
	return s.store.DeleteTag(ctx, session.UserID, tagID)
}

// Favorites lists only favorited sites, pinned first.
func (s *Service) Favorites(ctx context.Context, session Session) ([]map[string]any, error) {
	favorite := true
	return s.ListSites(ctx, session, store.SiteFilter{Favorite: &favorite})
}

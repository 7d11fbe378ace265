package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"sitekeeper/api/internal/store"
)

const importJSONBody = `{
	"filename": "sites.json",
	"content": "[{\"name\":\"GitHub\",\"url\":\"https://github.com\",\"categories\":[\"Dev Tools\"]},{\"name\":\"Figma\",\"url\":\"https://figma.com\",\"tags\":[\"design\"]}]"
}`

func TestImportPreviewEndpoint(t *testing.T) {
	fs := &fakeStore{
		listSitesFn: func(context.Context, string, store.SiteFilter) ([]store.Site, error) {
			return []store.Site{{ID: "site-1", NormalizedURL: "github.com"}}, nil
		},
	}
	server := newTestServer(fs)

	rr := postJSON(t, server, "/api/import/preview", importJSONBody, testAccessToken(t, "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	payload := parseBody(t, rr)
	if payload["total"] != float64(2) {
		t.Fatalf("expected 2 parsed sites, got %v", payload["total"])
	}
	if payload["existingDuplicates"] != float64(1) {
		t.Fatalf("expected github.com to be flagged as existing, got %v", payload["existingDuplicates"])
	}
}

func TestImportPreviewRejectsEmptyUpload(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rr := postJSON(t, server, "/api/import/preview", `{"filename":"sites.json","content":"[]"}`, testAccessToken(t, "user-1"))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 for empty upload, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestImportEndpointCreatesSites(t *testing.T) {
	var insertedSites []store.Site
	var insertedCategories []store.Category
	var insertedTags []store.Tag
	fs := &fakeStore{
		insertSiteFn: func(_ context.Context, site store.Site) error {
			insertedSites = append(insertedSites, site)
			return nil
		},
		insertCategoryFn: func(_ context.Context, item store.Category) error {
			insertedCategories = append(insertedCategories, item)
			return nil
		},
		insertTagFn: func(_ context.Context, item store.Tag) error {
			insertedTags = append(insertedTags, item)
			return nil
		},
	}
	server := newTestServer(fs)

	rr := postJSON(t, server, "/api/import", importJSONBody, testAccessToken(t, "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	payload := parseBody(t, rr)
	if payload["created"] != float64(2) {
		t.Fatalf("expected 2 created, got %v", payload)
	}
	if len(insertedSites) != 2 {
		t.Fatalf("expected 2 site inserts, got %d", len(insertedSites))
	}
	if len(insertedCategories) != 1 || insertedCategories[0].Name != "Dev Tools" {
		t.Fatalf("expected category Dev Tools to be created, got %v", insertedCategories)
	}
	if len(insertedTags) != 1 || insertedTags[0].Name != "design" {
		t.Fatalf("expected tag design to be created, got %v", insertedTags)
	}
}

func TestImportMergesExistingURL(t *testing.T) {
	existing := store.Site{
		ID:            "site-1",
		UserID:        "user-1",
		Name:          "GitHub",
		URL:           "https://github.com",
		NormalizedURL: "github.com",
		Categories:    []string{"Dev Tools"},
	}
	var updated *store.Site
	fs := &fakeStore{
		findSiteByNormalizedURLFn: func(_ context.Context, _, normalized string) (store.Site, error) {
			if normalized == "github.com" {
				return existing, nil
			}
			return store.Site{}, sql.ErrNoRows
		},
		updateSiteFn: func(_ context.Context, site store.Site) error {
			updated = &site
			return nil
		},
	}
	server := newTestServer(fs)

	body := `{"filename":"sites.json","content":"[{\"name\":\"GitHub\",\"url\":\"https://github.com\",\"categories\":[\"Open Source\"]}]"}`
	rr := postJSON(t, server, "/api/import", body, testAccessToken(t, "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	payload := parseBody(t, rr)
	if payload["updated"] != float64(1) {
		t.Fatalf("expected 1 updated, got %v", payload)
	}
	if updated == nil || len(updated.Categories) != 2 {
		t.Fatalf("expected categories to be unioned, got %+v", updated)
	}
}

func TestImportStopsAtTierLimit(t *testing.T) {
	siteCount := 499
	fs := &fakeStore{
		countSitesFn: func(context.Context, string) (int, error) {
			return siteCount, nil
		},
		insertSiteFn: func(context.Context, store.Site) error {
			siteCount++
			return nil
		},
	}
	server := newTestServer(fs)

	body := `{"filename":"sites.json","content":"[{\"url\":\"https://a.example.com\"},{\"url\":\"https://b.example.com\"},{\"url\":\"https://c.example.com\"}]"}`
	rr := postJSON(t, server, "/api/import", body, testAccessToken(t, "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 with partial result, got %d body=%s", rr.Code, rr.Body.String())
	}

	payload := parseBody(t, rr)
	if payload["tierLimited"] != true {
		t.Fatalf("expected tierLimited=true, got %v", payload)
	}
	if payload["created"] != float64(1) {
		t.Fatalf("expected 1 created before the limit, got %v", payload)
	}
	message, _ := payload["message"].(string)
	if !strings.Contains(message, "500") {
		t.Fatalf("expected limit in message, got %q", message)
	}
}

func TestExportEndpointCSV(t *testing.T) {
	fs := &fakeStore{
		listSitesFn: func(context.Context, string, store.SiteFilter) ([]store.Site, error) {
			return []store.Site{{
				ID:         "site-1",
				Name:       "GitHub",
				URL:        "https://github.com",
				Categories: []string{"Dev Tools"},
				Tags:       []string{"code", "git"},
			}}, nil
		},
	}
	server := newTestServer(fs)

	rr := getJSON(t, server, "/api/export?format=csv", testAccessToken(t, "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); !strings.Contains(got, "text/csv") {
		t.Fatalf("expected csv content type, got %q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, "attachment") {
		t.Fatalf("expected attachment disposition, got %q", got)
	}
	bodyText := rr.Body.String()
	if !strings.HasPrefix(bodyText, "Name,URL,Category,Tags,Description,Favorite,Pinned") {
		t.Fatalf("unexpected csv header: %q", bodyText)
	}
	if !strings.Contains(bodyText, "code;git") {
		t.Fatalf("expected semicolon-joined tags, got %q", bodyText)
	}
}

func TestExportEndpointRejectsUnknownFormat(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rr := getJSON(t, server, "/api/export?format=xml", testAccessToken(t, "user-1"))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected code VALIDATION_ERROR, got %v", payload["code"])
	}
}

package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"sitekeeper/api/internal/store"
)

func TestCreateShareLinkDefaultsTitle(t *testing.T) {
	var created store.ShareLink
	fs := &fakeStore{
		createShareLinkFn: func(_ context.Context, link store.ShareLink) error {
			created = link
			return nil
		},
	}
	server := newTestServer(fs)

	rr := postJSON(t, server, "/api/share-links", `{}`, testAccessToken(t, "user-1"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	if created.Title != "Test User's sites" {
		t.Fatalf("expected default title from display name, got %q", created.Title)
	}
	if created.Token == "" {
		t.Fatalf("expected a share token")
	}
	payload := parseBody(t, rr)
	if payload["token"] == nil {
		t.Fatalf("expected token in payload")
	}
}

func TestPublicShareIsReadableWithoutAuth(t *testing.T) {
	var touched string
	fs := &fakeStore{
		getShareLinkByTokenFn: func(_ context.Context, token string) (store.ShareLink, error) {
			return store.ShareLink{ID: "share-1", Token: token, UserID: "user-1", Title: "Avery's sites"}, nil
		},
		touchShareLinkFn: func(_ context.Context, linkID string) error {
			touched = linkID
			return nil
		},
		listSitesFn: func(context.Context, string, store.SiteFilter) ([]store.Site, error) {
			return []store.Site{{ID: "site-1", Name: "Example"}}, nil
		},
	}
	server := newTestServer(fs)

	rr := getJSON(t, server, "/share/tok123", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := parseBody(t, rr)
	if payload["title"] != "Avery's sites" {
		t.Fatalf("expected link title, got %v", payload["title"])
	}
	if payload["count"] != float64(1) {
		t.Fatalf("expected one shared site, got %v", payload["count"])
	}
	if touched != "share-1" {
		t.Fatalf("expected access counter bump for share-1, got %q", touched)
	}
}

func TestPublicShareRevokedReadsAsNotFound(t *testing.T) {
	revokedAt := time.Now()
	fs := &fakeStore{
		getShareLinkByTokenFn: func(_ context.Context, token string) (store.ShareLink, error) {
			return store.ShareLink{ID: "share-1", Token: token, UserID: "user-1", RevokedAt: &revokedAt}, nil
		},
	}
	server := newTestServer(fs)

	rr := getJSON(t, server, "/share/tok123", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for revoked link, got %d", rr.Code)
	}
}

func TestPublicShareUnknownToken(t *testing.T) {
	server := newTestServer(&fakeStore{})

	rr := getJSON(t, server, "/share/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestRevokeShareLink(t *testing.T) {
	var revoked string
	fs := &fakeStore{
		revokeShareLinkFn: func(_ context.Context, _, linkID string) error {
			revoked = linkID
			return nil
		},
	}
	server := newTestServer(fs)

	rr := doJSON(t, server, http.MethodDelete, "/api/share-links/share-1", "", testAccessToken(t, "user-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if revoked != "share-1" {
		t.Fatalf("expected share-1 revoked, got %q", revoked)
	}
}

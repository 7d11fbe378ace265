package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxSites = "sitekeeper_sites"

// Meili indexes and searches sites via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the sites index.
// The service keeps running when Meilisearch is down; a background loop
// rechecks health and reconfigures on recovery.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxSites,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxSites, err)
	}

	index := m.client.Index(idxSites)

	filterable := []string{"userId", "pricing", "categories", "tags", "isFavorite", "isPinned"}
	filterableInterface := make([]interface{}, len(filterable))
	for i, v := range filterable {
		filterableInterface[i] = v
	}
	if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxSites, err)
	}

	searchable := []string{"name", "url", "description", "categories", "tags"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxSites, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the sites index scoped to the requesting user.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	sr := &meili.SearchRequest{
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"name", "description"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}

	filters := []string{fmt.Sprintf("userId = %q", q.UserID)}
	if q.FilterCategory != "" {
		filters = append(filters, fmt.Sprintf("categories = %q", q.FilterCategory))
	}
	if q.FilterTag != "" {
		filters = append(filters, fmt.Sprintf("tags = %q", q.FilterTag))
	}
	if q.FilterPricing != "" {
		filters = append(filters, fmt.Sprintf("pricing = %q", q.FilterPricing))
	}
	sr.Filter = filters

	resp, err := m.client.Index(idxSites).Search(q.Text, sr)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		ID:         decodeString(hit, "id"),
		Name:       decodeString(hit, "name"),
		URL:        decodeString(hit, "url"),
		Pricing:    decodeString(hit, "pricing"),
		Categories: decodeStrings(hit, "categories"),
		Tags:       decodeStrings(hit, "tags"),
		IsFavorite: decodeBool(hit, "isFavorite"),
		IsPinned:   decodeBool(hit, "isPinned"),
	}
	r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
	if formatted := decodeFormattedString(hit, "name"); formatted != "" {
		r.Name = formatted
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeStrings(hit meili.Hit, key string) []string {
	raw, ok := hit[key]
	if !ok {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err == nil {
		return out
	}
	return nil
}

func decodeBool(hit meili.Hit, key string) bool {
	raw, ok := hit[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	return false
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexSite adds or updates a site in the search index.
func (m *Meili) IndexSite(rec SiteRecord) error {
	_, err := m.client.Index(idxSites).AddDocuments([]SiteRecord{rec}, nil)
	return err
}

// IndexSites bulk-indexes sites.
func (m *Meili) IndexSites(records []SiteRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxSites).AddDocuments(records, nil)
	return err
}

// DeleteSite removes a site from the search index.
func (m *Meili) DeleteSite(id string) error {
	_, err := m.client.Index(idxSites).DeleteDocument(id, nil)
	return err
}

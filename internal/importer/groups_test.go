package importer

import "testing"

func TestBuildGroupsOnlyMultiMember(t *testing.T) {
	items := []string{"a", "b", "a", "c"}
	groups := BuildGroups(items, func(s string) string { return s })
	if len(groups) != 1 {
		t.Fatalf("expected exactly one group, got %d", len(groups))
	}
	if groups[0].Key != "a" || len(groups[0].Items) != 2 {
		t.Errorf("unexpected group: %+v", groups[0])
	}
}

func TestBuildGroupsIgnoresEmptyKeys(t *testing.T) {
	items := []string{"", "", "x"}
	groups := BuildGroups(items, func(s string) string { return s })
	if len(groups) != 0 {
		t.Errorf("empty keys must not form groups, got %+v", groups)
	}
}

func TestBuildGroupsOrdering(t *testing.T) {
	items := []string{"b", "a", "a", "a", "b", "c", "c"}
	groups := BuildGroups(items, func(s string) string { return s })
	if len(groups) != 3 {
		t.Fatalf("expected three groups, got %d", len(groups))
	}
	if groups[0].Key != "a" {
		t.Errorf("largest group first, got %q", groups[0].Key)
	}
	// b and c both have two members; ties break on key.
	if groups[1].Key != "b" || groups[2].Key != "c" {
		t.Errorf("tie break by key, got %q then %q", groups[1].Key, groups[2].Key)
	}
}

func TestBuildGroupsNormalizedURLs(t *testing.T) {
	sites := []ParsedSite{
		{Name: "One", URL: "https://example.com/page"},
		{Name: "Two", URL: "http://www.example.com/page/"},
		{Name: "Three", URL: "https://other.com"},
	}
	groups := BuildGroups(sites, func(s ParsedSite) string { return NormalizeURL(s.URL) })
	if len(groups) != 1 {
		t.Fatalf("expected one duplicate group, got %d", len(groups))
	}
	if groups[0].Key != "example.com/page" || len(groups[0].Items) != 2 {
		t.Errorf("unexpected group: key=%q size=%d", groups[0].Key, len(groups[0].Items))
	}
}

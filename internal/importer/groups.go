package importer

import "sort"

// Group is a set of items sharing a key.
type Group[T any] struct {
	Key   string `json:"key"`
	Items []T    `json:"items"`
}

// BuildGroups buckets items by keyFn and returns only buckets with more than
// one member, largest first (ties broken by key). Items with an empty key are
// ignored.
func BuildGroups[T any](items []T, keyFn func(T) string) []Group[T] {
	buckets := make(map[string][]T)
	order := make([]string, 0)
	for _, item := range items {
		key := keyFn(item)
		if key == "" {
			continue
		}
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], item)
	}

	groups := make([]Group[T], 0)
	for _, key := range order {
		if len(buckets[key]) > 1 {
			groups = append(groups, Group[T]{Key: key, Items: buckets[key]})
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].Items) != len(groups[j].Items) {
			return len(groups[i].Items) > len(groups[j].Items)
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}

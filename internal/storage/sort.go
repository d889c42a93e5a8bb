package storage

import (
	"sort"

	"snaplink/internal/domain"
)

// sortNewestFirst orders records by CreatedAt descending, then by code.
func sortNewestFirst(links []domain.LinkRecord) {
	sort.Slice(links, func(i, j int) bool {
		if !links[i].CreatedAt.Equal(links[j].CreatedAt) {
			return links[i].CreatedAt.After(links[j].CreatedAt)
		}
		return links[i].Code < links[j].Code
	})
}

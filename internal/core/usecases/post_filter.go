package usecases

import (
	"sort"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/pkg/geospatial"
)

// ProcessPosts applies visibility, scope and sort for key. Sorting is
// stable. Nearest ordering needs origin; without one the input order is
// kept. Recommended has no ranking signal and orders like newest.
func ProcessPosts(posts []domain.Post, key domain.FeedQueryKey, origin *domain.Coordinate) []domain.Post {
	out := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		if !p.VisibleTo(key.Identity) {
			continue
		}
		if key.Scope == domain.ScopeMine && (key.Identity == "" || p.OwnerID != key.Identity) {
			continue
		}
		out = append(out, p)
	}

	switch key.Sort {
	case domain.SortOldest:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	case domain.SortNearest:
		if origin == nil {
			break
		}
		dist := make(map[string]float64, len(out))
		for _, p := range out {
			dist[p.ID] = geospatial.Haversine(origin.Lat, origin.Lng, p.Latitude, p.Longitude)
		}
		sort.SliceStable(out, func(i, j int) bool {
			return dist[out[i].ID] < dist[out[j].ID]
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}

// PostsWithin keeps posts within radiusMeters of center.
func PostsWithin(posts []domain.Post, center domain.Coordinate, radiusMeters float64) []domain.Post {
	out := make([]domain.Post, 0, len(posts))
	for _, p := range posts {
		if geospatial.WithinRadius(center.Lat, center.Lng, p.Latitude, p.Longitude, radiusMeters) {
			out = append(out, p)
		}
	}
	return out
}

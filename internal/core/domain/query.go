package domain

import (
	"strings"
	"time"
)

// Scope selects whose posts the feed shows.
type Scope string

const (
	ScopeAll  Scope = "all"
	ScopeMine Scope = "mine"
)

// ParseScope maps a client value onto a Scope, defaulting to ScopeAll.
func ParseScope(s string) Scope {
	if Scope(strings.ToLower(strings.TrimSpace(s))) == ScopeMine {
		return ScopeMine
	}
	return ScopeAll
}

// SortMode orders the rendered posts.
type SortMode string

const (
	SortNewest      SortMode = "newest"
	SortOldest      SortMode = "oldest"
	SortNearest     SortMode = "nearest"
	SortRecommended SortMode = "recommended"
)

// ParseSortMode maps a client value onto a SortMode, defaulting to SortNewest.
func ParseSortMode(s string) SortMode {
	switch m := SortMode(strings.ToLower(strings.TrimSpace(s))); m {
	case SortOldest, SortNearest, SortRecommended:
		return m
	default:
		return SortNewest
	}
}

// FeedQueryKey identifies one resolution of the feed. Two keys are equal
// when identity, scope and sort match and the search text matches after
// trimming and lower-casing.
type FeedQueryKey struct {
	Identity string   `json:"identity,omitempty"`
	Scope    Scope    `json:"scope"`
	Sort     SortMode `json:"sort"`
	Query    string   `json:"q,omitempty"`
}

// NewFeedQueryKey builds a key with parsed scope/sort and a trimmed query.
func NewFeedQueryKey(identity, scope, sort, query string) FeedQueryKey {
	return FeedQueryKey{
		Identity: strings.TrimSpace(identity),
		Scope:    ParseScope(scope),
		Sort:     ParseSortMode(sort),
		Query:    strings.TrimSpace(query),
	}
}

// NormalizedQuery is the search component used for comparison and caching.
func (k FeedQueryKey) NormalizedQuery() string {
	return strings.ToLower(strings.TrimSpace(k.Query))
}

// SearchMode reports whether the key resolves through remote search.
func (k FeedQueryKey) SearchMode() bool {
	return k.NormalizedQuery() != ""
}

// Equal compares keys component-wise with the normalized search text.
func (k FeedQueryKey) Equal(o FeedQueryKey) bool {
	return k.Identity == o.Identity &&
		k.Scope == o.Scope &&
		k.Sort == o.Sort &&
		k.NormalizedQuery() == o.NormalizedQuery()
}

// String renders the deterministic composite form of the key.
func (k FeedQueryKey) String() string {
	id := k.Identity
	if id == "" {
		id = "public"
	}
	return strings.Join([]string{id, string(k.Scope), string(k.Sort), k.NormalizedQuery()}, "|")
}

// ResolutionKey names the remote read behind the key. Scope and sort are
// applied client-side, so keys differing only in those share a resolution.
// Search and feed resolutions never share a name.
func (k FeedQueryKey) ResolutionKey() string {
	id := k.Identity
	if id == "" {
		id = "public"
	}
	if k.SearchMode() {
		return "search:" + id + ":" + k.NormalizedQuery()
	}
	return "feed:" + id
}

// FeedStatus is the render state of the feed.
type FeedStatus string

const (
	FeedIdle    FeedStatus = "idle"
	FeedLoading FeedStatus = "loading"
	FeedReady   FeedStatus = "ready"
	FeedError   FeedStatus = "error"
)

// FeedState is what the rendering layer shows for the active key.
// An empty Ready state means zero matching posts; failures use FeedError.
type FeedState struct {
	Key          FeedQueryKey `json:"key"`
	Status       FeedStatus   `json:"status"`
	Posts        []Post       `json:"posts"`
	Err          error        `json:"-"`
	Error        string       `json:"error,omitempty"`
	Revalidating bool         `json:"revalidating"`
	UpdatedAt    time.Time    `json:"updated_at,omitempty"`
}

package domain

import (
	"time"
)

// Post is a geotagged discovery owned by the remote backend.
// Identity is by ID; the core never mutates a Post.
type Post struct {
	ID           string    `json:"post_id"`
	OwnerID      string    `json:"user_id"`
	ImageID      string    `json:"img_id"`
	UserQuestion string    `json:"user_question"`
	AIAnswer     string    `json:"ai_answer"`
	AIQuestion   string    `json:"ai_question"`
	ObjectLabel  string    `json:"object_label"`
	AIReference  *string   `json:"ai_reference"`
	Location     string    `json:"location"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	IsPublic     bool      `json:"is_public"`
	Rarity       int       `json:"post_rarity"`
	CreatedAt    time.Time `json:"date"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Coordinate returns the post position.
func (p Post) Coordinate() Coordinate {
	return Coordinate{Lat: p.Latitude, Lng: p.Longitude}
}

// VisibleTo reports whether identity may see the post: public posts are
// visible to everyone, private ones only to their owner.
func (p Post) VisibleTo(identity string) bool {
	return p.IsPublic || (identity != "" && p.OwnerID == identity)
}

// PostPage is the body shape returned by the remote feed and search reads.
type PostPage struct {
	Posts []Post `json:"posts"`
}

package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/samirrijal/discoverymap/internal/core/domain"
	"github.com/samirrijal/discoverymap/internal/pkg/geoformat"
)

const (
	// RecentDelay holds fresh posts back from the recent feed.
	RecentDelay = 15 * time.Minute
	// MaxRecent caps a single recent read.
	MaxRecent = 500

	defaultSearchLimit = 12
)

const postColumns = `post_id::text, user_id::text, img_id::text,
	user_question, ai_answer, ai_question, object_label, ai_reference,
	location, latitude, longitude, is_public, post_rarity, date, updated_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostRepo implements ports.PostStore on the posts table.
type PostRepo struct {
	db  Querier
	now func() time.Time
}

// NewPostRepo creates a new PostRepo.
func NewPostRepo(db Querier) *PostRepo {
	return &PostRepo{db: db, now: time.Now}
}

// RecentPosts returns posts older than RecentDelay that identity may see,
// newest first.
func (r *PostRepo) RecentPosts(ctx context.Context, identity string) ([]domain.Post, error) {
	cutoff := r.now().UTC().Add(-RecentDelay)
	rows, err := r.db.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE date < $1 AND (is_public OR user_id::text = $2)
		ORDER BY date DESC
		LIMIT $3
	`, cutoff, identity, MaxRecent)
	if err != nil {
		return nil, eris.Wrap(err, "query recent posts")
	}
	return collectPosts(rows)
}

// SearchPosts matches query against the post text fields.
func (r *PostRepo) SearchPosts(ctx context.Context, query string, limit int) ([]domain.Post, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	pattern := "%" + likeEscaper.Replace(query) + "%"
	rows, err := r.db.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE user_question ILIKE $1 OR ai_answer ILIKE $1
		   OR object_label ILIKE $1 OR location ILIKE $1
		ORDER BY date DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, eris.Wrap(err, "search posts")
	}
	return collectPosts(rows)
}

// Upsert inserts or updates a post and its point geometry.
func (r *PostRepo) Upsert(ctx context.Context, p *domain.Post) error {
	if _, err := uuid.Parse(p.ID); err != nil {
		return eris.Wrapf(domain.ErrInvalidPostID, "post id %q", p.ID)
	}
	geom, err := geoformat.EncodePoint(p.Coordinate())
	if err != nil {
		return eris.Wrap(err, "encode post geometry")
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = r.now().UTC()
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO posts (post_id, user_id, img_id, user_question, ai_answer, ai_question,
		                   object_label, ai_reference, location, latitude, longitude, geom,
		                   is_public, post_rarity, date, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, ST_GeomFromEWKB($12),
		        $13, $14, $15, now())
		ON CONFLICT (post_id) DO UPDATE
		SET user_question = EXCLUDED.user_question, ai_answer = EXCLUDED.ai_answer,
		    ai_question = EXCLUDED.ai_question, object_label = EXCLUDED.object_label,
		    ai_reference = EXCLUDED.ai_reference, location = EXCLUDED.location,
		    latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude, geom = EXCLUDED.geom,
		    is_public = EXCLUDED.is_public, post_rarity = EXCLUDED.post_rarity,
		    updated_at = now()
	`, p.ID, p.OwnerID, p.ImageID, p.UserQuestion, p.AIAnswer, p.AIQuestion,
		p.ObjectLabel, p.AIReference, p.Location, p.Latitude, p.Longitude, geom,
		p.IsPublic, p.Rarity, created)
	if err != nil {
		return eris.Wrapf(err, "upsert post %s", p.ID)
	}
	return nil
}

// GetByID returns a single post.
func (r *PostRepo) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, eris.Wrapf(domain.ErrInvalidPostID, "post id %q", id)
	}
	rows, err := r.db.Query(ctx, `SELECT `+postColumns+` FROM posts WHERE post_id = $1`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "get post %s", id)
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, eris.Wrapf(domain.ErrPostNotFound, "post %s", id)
	}
	return &posts[0], nil
}

func collectPosts(rows pgx.Rows) ([]domain.Post, error) {
	defer rows.Close()

	posts := []domain.Post{}
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(
			&p.ID, &p.OwnerID, &p.ImageID,
			&p.UserQuestion, &p.AIAnswer, &p.AIQuestion, &p.ObjectLabel, &p.AIReference,
			&p.Location, &p.Latitude, &p.Longitude, &p.IsPublic, &p.Rarity,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "scan post")
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(err, "iterate posts")
	}
	return posts, nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outbox event types; each is also the JetStream subject it is published on.
const (
	EventVideoCreated = "catalog.video.created"
	EventVideoUpdated = "catalog.video.updated"
)

// PostgresCatalogStore is the production Postgres-backed implementation.
type PostgresCatalogStore struct {
	db *pgxpool.Pool
}

func NewPostgresCatalogStore(db *pgxpool.Pool) *PostgresCatalogStore {
	return &PostgresCatalogStore{db: db}
}

// ── Videos ─────────────────────────────────────────────────────────────────

const videoColumnList = `id::text, title, description, thumbnail_url, duration_ms, visibility, user_id::text, category_id::text, created_at, updated_at`

func scanVideo(row pgx.Row) (Video, error) {
	var v Video
	err := row.Scan(&v.ID, &v.Title, &v.Description, &v.ThumbnailURL, &v.DurationMS, &v.Visibility,
		&v.UserID, &v.CategoryID, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (s *PostgresCatalogStore) CreateVideo(ctx context.Context, userID string) (Video, error) {
	var out Video
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		v, err := scanVideo(tx.QueryRow(ctx,
			`INSERT INTO videos (title, user_id) VALUES ($1, $2::uuid) RETURNING `+videoColumnList,
			DefaultVideoTitle, userID))
		if err != nil {
			return err
		}
		out = v
		return insertOutboxEvent(ctx, tx, EventVideoCreated, v)
	})
	return out, err
}

func (s *PostgresCatalogStore) UpdateVideo(ctx context.Context, id, userID string, p VideoPatch) (Video, error) {
	var out Video
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		v, err := scanVideo(tx.QueryRow(ctx,
			`SELECT `+videoColumnList+` FROM videos WHERE id = $1::uuid AND user_id = $2::uuid FOR UPDATE`,
			id, userID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		p.apply(&v)
		v, err = scanVideo(tx.QueryRow(ctx, `
UPDATE videos
SET title = $2, description = $3, visibility = $4, category_id = $5::uuid, updated_at = now()
WHERE id = $1::uuid
RETURNING `+videoColumnList,
			id, v.Title, v.Description, string(v.Visibility), v.CategoryID))
		if err != nil {
			return err
		}
		out = v
		return insertOutboxEvent(ctx, tx, EventVideoUpdated, v)
	})
	if isForeignKeyViolation(err) {
		return Video{}, ErrNotFound
	}
	return out, err
}

func (s *PostgresCatalogStore) GetVideo(ctx context.Context, id, viewerID string) (Video, error) {
	v, err := scanVideo(s.db.QueryRow(ctx, `
SELECT `+videoColumnList+`
FROM videos
WHERE id = $1::uuid AND (visibility = 'public' OR user_id::text = $2)`, id, viewerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Video{}, ErrNotFound
	}
	return v, err
}

func (s *PostgresCatalogStore) ReactVideo(ctx context.Context, videoID, userID string, t ReactionType) (ReactionState, error) {
	state := ReactionState{VideoID: videoID}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		var current ReactionType
		err := tx.QueryRow(ctx,
			`SELECT type FROM video_reactions WHERE user_id = $1::uuid AND video_id = $2::uuid FOR UPDATE`,
			userID, videoID).Scan(&current)
		switch {
		case err == nil && current == t:
			_, err = tx.Exec(ctx,
				`DELETE FROM video_reactions WHERE user_id = $1::uuid AND video_id = $2::uuid`,
				userID, videoID)
			return err
		case err != nil && !errors.Is(err, pgx.ErrNoRows):
			return err
		}
		_, err = tx.Exec(ctx, `
INSERT INTO video_reactions (user_id, video_id, type)
VALUES ($1::uuid, $2::uuid, $3)
ON CONFLICT (user_id, video_id) DO UPDATE SET type = EXCLUDED.type, updated_at = now()`,
			userID, videoID, string(t))
		if err != nil {
			return err
		}
		state.Type = &t
		return nil
	})
	if isForeignKeyViolation(err) {
		return ReactionState{}, ErrNotFound
	}
	if err != nil {
		return ReactionState{}, err
	}
	return state, nil
}

func (s *PostgresCatalogStore) RecordViews(ctx context.Context, views []View) (int, error) {
	n := 0
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, v := range views {
			at := v.At
			if at.IsZero() {
				at = time.Now().UTC()
			}
			if err := ensureUser(ctx, tx, v.UserID); err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, `
INSERT INTO video_views (user_id, video_id, created_at, updated_at)
SELECT $1::uuid, v.id, $3, $3 FROM videos v WHERE v.id = $2::uuid
ON CONFLICT (user_id, video_id) DO UPDATE SET updated_at = GREATEST(video_views.updated_at, EXCLUDED.updated_at)`,
				v.UserID, v.VideoID, at)
			if err != nil {
				return err
			}
			n += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ── Categories ─────────────────────────────────────────────────────────────

func (s *PostgresCatalogStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id::text, name, description, created_at, updated_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Category])
}

func (s *PostgresCatalogStore) CreateCategory(ctx context.Context, name string, description *string) (Category, error) {
	var c Category
	err := s.db.QueryRow(ctx, `
INSERT INTO categories (name, description) VALUES ($1, $2)
RETURNING id::text, name, description, created_at, updated_at`, name, description).
		Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return Category{}, ErrConflict
	}
	return c, err
}

// ── Subscriptions ──────────────────────────────────────────────────────────

func (s *PostgresCatalogStore) Subscribe(ctx context.Context, viewerID, creatorID string) (Subscription, error) {
	if viewerID == creatorID {
		return Subscription{}, ErrSelfSubscription
	}
	var sub Subscription
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, viewerID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
INSERT INTO subscriptions (viewer_id, creator_id) VALUES ($1::uuid, $2::uuid)
RETURNING viewer_id::text, creator_id::text, created_at, updated_at`, viewerID, creatorID).
			Scan(&sub.ViewerID, &sub.CreatorID, &sub.CreatedAt, &sub.UpdatedAt)
	})
	switch {
	case isUniqueViolation(err):
		return Subscription{}, ErrConflict
	case isForeignKeyViolation(err):
		return Subscription{}, ErrNotFound
	}
	return sub, err
}

func (s *PostgresCatalogStore) Unsubscribe(ctx context.Context, viewerID, creatorID string) (Subscription, error) {
	if viewerID == creatorID {
		return Subscription{}, ErrSelfSubscription
	}
	var sub Subscription
	err := s.db.QueryRow(ctx, `
DELETE FROM subscriptions WHERE viewer_id = $1::uuid AND creator_id = $2::uuid
RETURNING viewer_id::text, creator_id::text, created_at, updated_at`, viewerID, creatorID).
		Scan(&sub.ViewerID, &sub.CreatorID, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subscription{}, ErrNotFound
	}
	return sub, err
}

// ── Playlists ──────────────────────────────────────────────────────────────

const playlistColumnList = `id::text, name, description, user_id::text, created_at, updated_at`

func scanPlaylist(row pgx.Row) (Playlist, error) {
	var p Playlist
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.UserID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Playlist{}, ErrNotFound
	}
	return p, err
}

func (s *PostgresCatalogStore) CreatePlaylist(ctx context.Context, userID, name string, description *string) (Playlist, error) {
	var out Playlist
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		p, err := scanPlaylist(tx.QueryRow(ctx,
			`INSERT INTO playlists (name, description, user_id) VALUES ($1, $2, $3::uuid) RETURNING `+playlistColumnList,
			name, description, userID))
		out = p
		return err
	})
	return out, err
}

func (s *PostgresCatalogStore) GetPlaylist(ctx context.Context, id, userID string) (Playlist, error) {
	return scanPlaylist(s.db.QueryRow(ctx,
		`SELECT `+playlistColumnList+` FROM playlists WHERE id = $1::uuid AND user_id = $2::uuid`, id, userID))
}

func (s *PostgresCatalogStore) DeletePlaylist(ctx context.Context, id, userID string) (Playlist, error) {
	return scanPlaylist(s.db.QueryRow(ctx,
		`DELETE FROM playlists WHERE id = $1::uuid AND user_id = $2::uuid RETURNING `+playlistColumnList, id, userID))
}

const playlistVideoColumnList = `playlist_id::text, video_id::text, created_at, updated_at`

func (s *PostgresCatalogStore) AddVideo(ctx context.Context, playlistID, videoID, userID string) (PlaylistVideo, error) {
	if _, err := s.GetPlaylist(ctx, playlistID, userID); err != nil {
		return PlaylistVideo{}, err
	}
	var pv PlaylistVideo
	err := s.db.QueryRow(ctx,
		`INSERT INTO playlist_videos (playlist_id, video_id) VALUES ($1::uuid, $2::uuid) RETURNING `+playlistVideoColumnList,
		playlistID, videoID).Scan(&pv.PlaylistID, &pv.VideoID, &pv.CreatedAt, &pv.UpdatedAt)
	switch {
	case isUniqueViolation(err):
		return PlaylistVideo{}, ErrConflict
	case isForeignKeyViolation(err):
		return PlaylistVideo{}, ErrNotFound
	}
	return pv, err
}

func (s *PostgresCatalogStore) RemoveVideo(ctx context.Context, playlistID, videoID, userID string) (PlaylistVideo, error) {
	if _, err := s.GetPlaylist(ctx, playlistID, userID); err != nil {
		return PlaylistVideo{}, err
	}
	var pv PlaylistVideo
	err := s.db.QueryRow(ctx,
		`DELETE FROM playlist_videos WHERE playlist_id = $1::uuid AND video_id = $2::uuid RETURNING `+playlistVideoColumnList,
		playlistID, videoID).Scan(&pv.PlaylistID, &pv.VideoID, &pv.CreatedAt, &pv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PlaylistVideo{}, ErrNotFound
	}
	return pv, err
}

// ── helpers ────────────────────────────────────────────────────────────────

// ensureUser mirrors an acting user the identity provider has not synced yet.
func ensureUser(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `INSERT INTO users (id, name) VALUES ($1::uuid, '') ON CONFLICT (id) DO NOTHING`, id)
	return err
}

func insertOutboxEvent(ctx context.Context, tx pgx.Tx, eventType string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO catalog_outbox (id, event_type, payload) VALUES ($1, $2, $3)`,
		uuid.New(), eventType, b,
	)
	return err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCommentStore persists comments in Postgres.
type PostgresCommentStore struct {
	pool *pgxpool.Pool
}

func NewPostgresCommentStore(pool *pgxpool.Pool) *PostgresCommentStore {
	return &PostgresCommentStore{pool: pool}
}

const commentColumns = `id::text, video_id::text, user_id::text, parent_id::text, value, created_at, updated_at`

func scanComment(row pgx.Row) (Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.VideoID, &c.UserID, &c.ParentID, &c.Value, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PostgresCommentStore) Create(ctx context.Context, c Comment) (Comment, error) {
	var out Comment
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, c.UserID); err != nil {
			return err
		}
		if c.ParentID != nil {
			var parentVideo string
			var grandparent *string
			err := tx.QueryRow(ctx,
				`SELECT video_id::text, parent_id::text FROM comments WHERE id = $1::uuid`,
				*c.ParentID).Scan(&parentVideo, &grandparent)
			if errors.Is(err, pgx.ErrNoRows) || (err == nil && parentVideo != c.VideoID) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			if grandparent != nil {
				return ErrNestedReply
			}
		}
		created, err := scanComment(tx.QueryRow(ctx, `
INSERT INTO comments (video_id, user_id, parent_id, value)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4)
RETURNING `+commentColumns, c.VideoID, c.UserID, c.ParentID, c.Value))
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if isForeignKeyViolation(err) {
		return Comment{}, ErrNotFound
	}
	return out, err
}

func (s *PostgresCommentStore) Remove(ctx context.Context, commentID, userID string) (Comment, error) {
	c, err := scanComment(s.pool.QueryRow(ctx,
		`DELETE FROM comments WHERE id = $1::uuid AND user_id = $2::uuid RETURNING `+commentColumns,
		commentID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresCommentStore) React(ctx context.Context, commentID, userID string, t ReactionType) (ReactionState, error) {
	state := ReactionState{CommentID: commentID}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := ensureUser(ctx, tx, userID); err != nil {
			return err
		}
		var current ReactionType
		err := tx.QueryRow(ctx,
			`SELECT type FROM comment_reactions WHERE user_id = $1::uuid AND comment_id = $2::uuid FOR UPDATE`,
			userID, commentID).Scan(&current)
		switch {
		case err == nil && current == t:
			_, err = tx.Exec(ctx,
				`DELETE FROM comment_reactions WHERE user_id = $1::uuid AND comment_id = $2::uuid`,
				userID, commentID)
			return err
		case err != nil && !errors.Is(err, pgx.ErrNoRows):
			return err
		}
		_, err = tx.Exec(ctx, `
INSERT INTO comment_reactions (user_id, comment_id, type)
VALUES ($1::uuid, $2::uuid, $3)
ON CONFLICT (user_id, comment_id) DO UPDATE SET type = EXCLUDED.type, updated_at = now()`,
			userID, commentID, string(t))
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

// ensureUser mirrors an acting user the identity provider has not synced yet.
func ensureUser(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `INSERT INTO users (id, name) VALUES ($1::uuid, '') ON CONFLICT (id) DO NOTHING`, id)
	return err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNestedReply rejects replies to replies; threads are one level deep.
	ErrNestedReply = errors.New("cannot reply to a reply")
)

type ReactionType string

const (
	ReactionLike    ReactionType = "like"
	ReactionDislike ReactionType = "dislike"
)

func (t ReactionType) Valid() bool {
	return t == ReactionLike || t == ReactionDislike
}

// Comment is a stored comment row.
type Comment struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video_id"`
	UserID    string    `json:"user_id"`
	ParentID  *string   `json:"parent_id"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Author struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

// CommentItem is a comment as listed: the row, its author, its reaction
// counts and the caller's own reaction (nil for anonymous callers).
type CommentItem struct {
	Comment
	User           Author        `json:"user"`
	LikeCount      int64         `json:"like_count"`
	DislikeCount   int64         `json:"dislike_count"`
	ReplyCount     int64         `json:"reply_count"`
	ViewerReaction *ReactionType `json:"viewer_reaction"`
}

// ReactionState is the caller's reaction after a toggle; Type is nil when
// the toggle removed it.
type ReactionState struct {
	CommentID string        `json:"comment_id"`
	Type      *ReactionType `json:"type"`
}

// CommentStore covers the mutation side of comments. Listing goes through
// the feed engine over the same tables.
type CommentStore interface {
	// Create inserts a comment. A parent must exist on the same video and
	// must itself be top-level.
	Create(ctx context.Context, c Comment) (Comment, error)
	// Remove deletes a comment authored by userID, with its replies.
	Remove(ctx context.Context, commentID, userID string) (Comment, error)
	// React toggles userID's reaction: the same type again removes it,
	// the other type replaces it.
	React(ctx context.Context, commentID, userID string, t ReactionType) (ReactionState, error)
}

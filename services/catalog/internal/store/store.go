// Package store holds the catalog's persistence: videos, categories, video
// reactions and views, subscriptions and playlists. Reads for list endpoints
// go through the feed engine over the tables described in feed.go.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("already exists")
	ErrSelfSubscription = errors.New("cannot subscribe to yourself")
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

type ReactionType string

const (
	ReactionLike    ReactionType = "like"
	ReactionDislike ReactionType = "dislike"
)

// DefaultVideoTitle is given to freshly created videos.
const DefaultVideoTitle = "Untitled"

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

type Video struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  *string    `json:"description"`
	ThumbnailURL *string    `json:"thumbnail_url"`
	DurationMS   int64      `json:"duration_ms"`
	Visibility   Visibility `json:"visibility"`
	UserID       string     `json:"user_id"`
	CategoryID   *string    `json:"category_id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// VideoPatch carries the fields an owner may change; nil leaves a field as is.
type VideoPatch struct {
	Title       *string
	Description *string
	Visibility  *Visibility
	CategoryID  *string
}

func (p VideoPatch) apply(v *Video) {
	if p.Title != nil {
		v.Title = *p.Title
	}
	if p.Description != nil {
		v.Description = p.Description
	}
	if p.Visibility != nil {
		v.Visibility = *p.Visibility
	}
	if p.CategoryID != nil {
		v.CategoryID = p.CategoryID
	}
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReactionState is the caller's reaction after a toggle; Type is nil when
// the toggle removed it.
type ReactionState struct {
	VideoID string        `json:"video_id"`
	Type    *ReactionType `json:"type"`
}

// View is one watch of a video by a user. Repeated views of the same video
// move it to the top of the user's history.
type View struct {
	UserID  string    `json:"user_id"`
	VideoID string    `json:"video_id"`
	At      time.Time `json:"at"`
}

type Subscription struct {
	ViewerID  string    `json:"viewer_id"`
	CreatorID string    `json:"creator_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Playlist struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	UserID      string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type PlaylistVideo struct {
	PlaylistID string    `json:"playlist_id"`
	VideoID    string    `json:"video_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Videos interface {
	// CreateVideo inserts a private video titled DefaultVideoTitle.
	CreateVideo(ctx context.Context, userID string) (Video, error)
	// UpdateVideo changes a video owned by userID.
	UpdateVideo(ctx context.Context, id, userID string, p VideoPatch) (Video, error)
	// GetVideo returns a public video, or a private one to its owner.
	GetVideo(ctx context.Context, id, viewerID string) (Video, error)
	// ReactVideo toggles userID's reaction: the same type again removes it,
	// the other type replaces it.
	ReactVideo(ctx context.Context, videoID, userID string, t ReactionType) (ReactionState, error)
	// RecordViews upserts views; views of unknown videos are skipped.
	RecordViews(ctx context.Context, views []View) (int, error)
}

type Categories interface {
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, name string, description *string) (Category, error)
}

type Subscriptions interface {
	Subscribe(ctx context.Context, viewerID, creatorID string) (Subscription, error)
	Unsubscribe(ctx context.Context, viewerID, creatorID string) (Subscription, error)
}

type Playlists interface {
	CreatePlaylist(ctx context.Context, userID, name string, description *string) (Playlist, error)
	// GetPlaylist and DeletePlaylist only see playlists owned by userID.
	GetPlaylist(ctx context.Context, id, userID string) (Playlist, error)
	DeletePlaylist(ctx context.Context, id, userID string) (Playlist, error)
	// AddVideo fails with ErrConflict when the video is already listed.
	AddVideo(ctx context.Context, playlistID, videoID, userID string) (PlaylistVideo, error)
	RemoveVideo(ctx context.Context, playlistID, videoID, userID string) (PlaylistVideo, error)
}

// CatalogStore is the full mutation side of the catalog.
type CatalogStore interface {
	Videos
	Categories
	Subscriptions
	Playlists
}

package store

import (
	"time"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/pgfeed"
)

// Logical tables known to the feed backends.
const (
	TableVideos         = "videos"
	TableVideoViews     = "video_views"
	TableVideoReactions = "video_reactions"
	TableSubscriptions  = "subscriptions"
	TablePlaylists      = "playlists"
	TablePlaylistVideos = "playlist_videos"
	TableHistory        = "history"
	TableLiked          = "liked"
	TablePlaylistItems  = "playlist_items"
)

// videoColumns maps the video fields plus the uploader, with v as the
// videos alias and u as the users alias.
func videoColumns(extra map[string]pgfeed.Column) map[string]pgfeed.Column {
	cols := map[string]pgfeed.Column{
		"id":             {Expr: "v.id", Type: pgfeed.UUID},
		"title":          {Expr: "v.title"},
		"description":    {Expr: "v.description"},
		"thumbnail_url":  {Expr: "v.thumbnail_url"},
		"duration_ms":    {Expr: "v.duration_ms", Type: pgfeed.Int},
		"visibility":     {Expr: "v.visibility"},
		"user_id":        {Expr: "v.user_id", Type: pgfeed.UUID},
		"category_id":    {Expr: "v.category_id", Type: pgfeed.UUID},
		"created_at":     {Expr: "v.created_at", Type: pgfeed.Timestamp},
		"updated_at":     {Expr: "v.updated_at", Type: pgfeed.Timestamp},
		"user_name":      {Expr: "u.name"},
		"user_image_url": {Expr: "u.image_url"},
	}
	for k, c := range extra {
		cols[k] = c
	}
	return cols
}

// Schema maps the catalog tables for pgfeed.
var Schema = pgfeed.Schema{
	TableVideos: {
		From:    "videos v JOIN users u ON u.id = v.user_id",
		Columns: videoColumns(nil),
	},
	TableVideoViews: {
		From: "video_views",
		Columns: map[string]pgfeed.Column{
			"user_id":    {Expr: "user_id", Type: pgfeed.UUID},
			"video_id":   {Expr: "video_id", Type: pgfeed.UUID},
			"updated_at": {Expr: "updated_at", Type: pgfeed.Timestamp},
		},
	},
	TableVideoReactions: {
		From: "video_reactions",
		Columns: map[string]pgfeed.Column{
			"user_id":  {Expr: "user_id", Type: pgfeed.UUID},
			"video_id": {Expr: "video_id", Type: pgfeed.UUID},
			"type":     {Expr: "type"},
		},
	},
	TableSubscriptions: {
		From: "subscriptions s JOIN users u ON u.id = s.creator_id",
		Columns: map[string]pgfeed.Column{
			"viewer_id":      {Expr: "s.viewer_id", Type: pgfeed.UUID},
			"creator_id":     {Expr: "s.creator_id", Type: pgfeed.UUID},
			"created_at":     {Expr: "s.created_at", Type: pgfeed.Timestamp},
			"updated_at":     {Expr: "s.updated_at", Type: pgfeed.Timestamp},
			"user_name":      {Expr: "u.name"},
			"user_image_url": {Expr: "u.image_url"},
		},
	},
	TablePlaylists: {
		From: "playlists p JOIN users u ON u.id = p.user_id",
		Columns: map[string]pgfeed.Column{
			"id":             {Expr: "p.id", Type: pgfeed.UUID},
			"name":           {Expr: "p.name"},
			"description":    {Expr: "p.description"},
			"user_id":        {Expr: "p.user_id", Type: pgfeed.UUID},
			"created_at":     {Expr: "p.created_at", Type: pgfeed.Timestamp},
			"updated_at":     {Expr: "p.updated_at", Type: pgfeed.Timestamp},
			"user_name":      {Expr: "u.name"},
			"user_image_url": {Expr: "u.image_url"},
		},
	},
	TablePlaylistVideos: {
		From: "playlist_videos",
		Columns: map[string]pgfeed.Column{
			"playlist_id": {Expr: "playlist_id", Type: pgfeed.UUID},
			"video_id":    {Expr: "video_id", Type: pgfeed.UUID},
		},
	},
	TableHistory: {
		From: "video_views vv JOIN videos v ON v.id = vv.video_id JOIN users u ON u.id = v.user_id",
		Columns: videoColumns(map[string]pgfeed.Column{
			"viewer_id": {Expr: "vv.user_id", Type: pgfeed.UUID},
			"viewed_at": {Expr: "vv.updated_at", Type: pgfeed.Timestamp},
		}),
	},
	TableLiked: {
		From: "video_reactions vr JOIN videos v ON v.id = vr.video_id JOIN users u ON u.id = v.user_id",
		Columns: videoColumns(map[string]pgfeed.Column{
			"viewer_id":     {Expr: "vr.user_id", Type: pgfeed.UUID},
			"reaction_type": {Expr: "vr.type"},
			"liked_at":      {Expr: "vr.updated_at", Type: pgfeed.Timestamp},
		}),
	},
	TablePlaylistItems: {
		From: "playlist_videos pv JOIN videos v ON v.id = pv.video_id JOIN users u ON u.id = v.user_id",
		Columns: videoColumns(map[string]pgfeed.Column{
			"playlist_id": {Expr: "pv.playlist_id", Type: pgfeed.UUID},
			"added_at":    {Expr: "pv.updated_at", Type: pgfeed.Timestamp},
		}),
	},
}

// VideoItem is a video as listed, with its uploader and counters. The
// timestamp of the viewer's own view, like or playlist insertion is set by
// the history, liked and playlist resources respectively.
type VideoItem struct {
	Video
	User         User       `json:"user"`
	ViewCount    int64      `json:"view_count"`
	LikeCount    int64      `json:"like_count"`
	DislikeCount int64      `json:"dislike_count"`
	ViewedAt     *time.Time `json:"viewed_at,omitempty"`
	LikedAt      *time.Time `json:"liked_at,omitempty"`
	AddedAt      *time.Time `json:"added_at,omitempty"`
}

type Creator struct {
	User
	SubscriberCount int64 `json:"subscriber_count"`
}

type SubscriptionItem struct {
	Subscription
	User Creator `json:"user"`
}

type PlaylistItem struct {
	Playlist
	User          User  `json:"user"`
	VideoCount    int64 `json:"video_count"`
	ContainsVideo bool  `json:"contains_video"`
}

var (
	viewCount = feed.Aggregate{Name: "view_count", Table: TableVideoViews, Column: "video_id"}
	likeCount = feed.Aggregate{Name: "like_count", Table: TableVideoReactions, Column: "video_id",
		Where: []feed.Predicate{feed.Eq("type", string(ReactionLike))}}
	dislikeCount = feed.Aggregate{Name: "dislike_count", Table: TableVideoReactions, Column: "video_id",
		Where: []feed.Predicate{feed.Eq("type", string(ReactionDislike))}}
)

func videoResource(name, table, key string, aggs ...feed.Aggregate) feed.Resource[VideoItem] {
	return feed.Resource[VideoItem]{
		Name:       name,
		Table:      table,
		Order:      feed.Order{Key: key, ID: "id"},
		Aggregates: aggs,
		Decode:     decodeVideo,
	}
}

// VideoResource lists videos, optionally narrowed by category, uploader or
// the viewer's subscriptions.
func VideoResource() feed.Resource[VideoItem] {
	return videoResource("videos", TableVideos, "updated_at", viewCount, likeCount, dislikeCount)
}

// SearchResource lists videos whose title contains the query text.
func SearchResource() feed.Resource[VideoItem] {
	return videoResource("search", TableVideos, "updated_at", viewCount, likeCount)
}

// SuggestionResource lists other videos of a video's category.
func SuggestionResource() feed.Resource[VideoItem] {
	r := videoResource("suggestions", TableVideos, "updated_at", viewCount, likeCount)
	r.Required = []string{"category_id"}
	return r
}

// HistoryResource lists the viewer's watched videos, most recent view first.
func HistoryResource() feed.Resource[VideoItem] {
	r := videoResource("history", TableHistory, "viewed_at", viewCount, likeCount)
	r.Required = []string{"viewer_id"}
	r.RequiresViewer = true
	return r
}

// LikedResource lists videos the viewer liked, most recent like first.
func LikedResource() feed.Resource[VideoItem] {
	r := videoResource("liked", TableLiked, "liked_at", viewCount, likeCount)
	r.Required = []string{"viewer_id"}
	r.RequiresViewer = true
	return r
}

// PlaylistVideoResource lists the videos of one playlist, last added first.
func PlaylistVideoResource() feed.Resource[VideoItem] {
	r := videoResource("playlist_videos", TablePlaylistItems, "added_at", viewCount, likeCount)
	r.Required = []string{"playlist_id"}
	r.RequiresViewer = true
	return r
}

// SubscriptionResource lists the creators the viewer follows. Creator ids
// break timestamp ties.
func SubscriptionResource() feed.Resource[SubscriptionItem] {
	return feed.Resource[SubscriptionItem]{
		Name:           "subscriptions",
		Table:          TableSubscriptions,
		Order:          feed.Order{Key: "updated_at", ID: "creator_id"},
		Required:       []string{"viewer_id"},
		RequiresViewer: true,
		Aggregates: []feed.Aggregate{
			{Name: "subscriber_count", Table: TableSubscriptions, Column: "creator_id"},
		},
		Decode: decodeSubscription,
	}
}

// PlaylistResource lists the viewer's playlists. With a video_id scope each
// playlist reports whether it already holds that video.
func PlaylistResource() feed.Resource[PlaylistItem] {
	return feed.Resource[PlaylistItem]{
		Name:           "playlists",
		Table:          TablePlaylists,
		Order:          feed.Order{Key: "updated_at", ID: "id"},
		Required:       []string{"user_id"},
		RequiresViewer: true,
		Aggregates: []feed.Aggregate{
			{Name: "video_count", Table: TablePlaylistVideos, Column: "playlist_id"},
		},
		Attachments: []feed.Attachment{
			{Name: "contains_video", Table: TablePlaylistVideos, Column: "playlist_id", ScopeColumn: "video_id", Scope: "video_id"},
		},
		Decode: decodePlaylist,
	}
}

func timePtr(r feed.Record, field string) *time.Time {
	t, ok := r[field].(time.Time)
	if !ok {
		return nil
	}
	return &t
}

func decodeVideo(r feed.Record) (VideoItem, error) {
	return VideoItem{
		Video: Video{
			ID:           r.String("id"),
			Title:        r.String("title"),
			Description:  r.StringPtr("description"),
			ThumbnailURL: r.StringPtr("thumbnail_url"),
			DurationMS:   r.Int("duration_ms"),
			Visibility:   Visibility(r.String("visibility")),
			UserID:       r.String("user_id"),
			CategoryID:   r.StringPtr("category_id"),
			CreatedAt:    r.Time("created_at"),
			UpdatedAt:    r.Time("updated_at"),
		},
		User: User{
			ID:       r.String("user_id"),
			Name:     r.String("user_name"),
			ImageURL: r.String("user_image_url"),
		},
		ViewCount:    r.Int("view_count"),
		LikeCount:    r.Int("like_count"),
		DislikeCount: r.Int("dislike_count"),
		ViewedAt:     timePtr(r, "viewed_at"),
		LikedAt:      timePtr(r, "liked_at"),
		AddedAt:      timePtr(r, "added_at"),
	}, nil
}

func decodeSubscription(r feed.Record) (SubscriptionItem, error) {
	return SubscriptionItem{
		Subscription: Subscription{
			ViewerID:  r.String("viewer_id"),
			CreatorID: r.String("creator_id"),
			CreatedAt: r.Time("created_at"),
			UpdatedAt: r.Time("updated_at"),
		},
		User: Creator{
			User: User{
				ID:       r.String("creator_id"),
				Name:     r.String("user_name"),
				ImageURL: r.String("user_image_url"),
			},
			SubscriberCount: r.Int("subscriber_count"),
		},
	}, nil
}

func decodePlaylist(r feed.Record) (PlaylistItem, error) {
	return PlaylistItem{
		Playlist: Playlist{
			ID:          r.String("id"),
			Name:        r.String("name"),
			Description: r.StringPtr("description"),
			UserID:      r.String("user_id"),
			CreatedAt:   r.Time("created_at"),
			UpdatedAt:   r.Time("updated_at"),
		},
		User: User{
			ID:       r.String("user_id"),
			Name:     r.String("user_name"),
			ImageURL: r.String("user_image_url"),
		},
		VideoCount:    r.Int("video_count"),
		ContainsVideo: r.Bool("contains_video"),
	}, nil
}

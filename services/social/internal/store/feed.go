package store

import (
	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/pgfeed"
)

const (
	TableComments         = "comments"
	TableCommentReactions = "comment_reactions"
)

// Schema maps the comment tables for pgfeed.
var Schema = pgfeed.Schema{
	TableComments: {
		From: "comments c JOIN users u ON u.id = c.user_id",
		Columns: map[string]pgfeed.Column{
			"id":             {Expr: "c.id", Type: pgfeed.UUID},
			"video_id":       {Expr: "c.video_id", Type: pgfeed.UUID},
			"parent_id":      {Expr: "c.parent_id", Type: pgfeed.UUID},
			"user_id":        {Expr: "c.user_id", Type: pgfeed.UUID},
			"value":          {Expr: "c.value"},
			"created_at":     {Expr: "c.created_at", Type: pgfeed.Timestamp},
			"updated_at":     {Expr: "c.updated_at", Type: pgfeed.Timestamp},
			"user_name":      {Expr: "u.name"},
			"user_image_url": {Expr: "u.image_url"},
		},
	},
	TableCommentReactions: {
		From: "comment_reactions",
		Columns: map[string]pgfeed.Column{
			"comment_id": {Expr: "comment_id", Type: pgfeed.UUID},
			"user_id":    {Expr: "user_id", Type: pgfeed.UUID},
			"type":       {Expr: "type"},
		},
	},
}

// CommentResource lists comments of one video, newest activity first.
func CommentResource() feed.Resource[CommentItem] {
	return feed.Resource[CommentItem]{
		Name:     "comments",
		Table:    TableComments,
		Order:    feed.Order{Key: "updated_at", ID: "id"},
		Required: []string{"video_id"},
		Aggregates: []feed.Aggregate{
			{Name: "like_count", Table: TableCommentReactions, Column: "comment_id", Where: []feed.Predicate{feed.Eq("type", string(ReactionLike))}},
			{Name: "dislike_count", Table: TableCommentReactions, Column: "comment_id", Where: []feed.Predicate{feed.Eq("type", string(ReactionDislike))}},
			{Name: "reply_count", Table: TableComments, Column: "parent_id"},
		},
		Attachments: []feed.Attachment{
			{Name: "viewer_reaction", Table: TableCommentReactions, Column: "comment_id", ScopeColumn: "user_id", Scope: feed.ScopeViewer, Value: "type"},
		},
		Decode: decodeComment,
	}
}

func decodeComment(r feed.Record) (CommentItem, error) {
	item := CommentItem{
		Comment: Comment{
			ID:        r.String("id"),
			VideoID:   r.String("video_id"),
			UserID:    r.String("user_id"),
			ParentID:  r.StringPtr("parent_id"),
			Value:     r.String("value"),
			CreatedAt: r.Time("created_at"),
			UpdatedAt: r.Time("updated_at"),
		},
		User: Author{
			ID:       r.String("user_id"),
			Name:     r.String("user_name"),
			ImageURL: r.String("user_image_url"),
		},
		LikeCount:    r.Int("like_count"),
		DislikeCount: r.Int("dislike_count"),
		ReplyCount:   r.Int("reply_count"),
	}
	if v := r.StringPtr("viewer_reaction"); v != nil {
		t := ReactionType(*v)
		item.ViewerReaction = &t
	}
	return item, nil
}

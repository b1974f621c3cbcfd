package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/memfeed"
)

func newTestStore() *InMemoryCommentStore {
	s := NewInMemoryCommentStore()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		at = at.Add(time.Second)
		return at
	}
	s.PutAuthor(Author{ID: "user-a", Name: "Ann", ImageURL: "https://img.example.com/a.png"})
	return s
}

func TestInMemoryCommentStore_Create(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	c, err := s.Create(ctx, Comment{VideoID: "video-1", UserID: "user-a", Value: "hello"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID == "" {
		t.Fatal("expected non-empty id")
	}
	if c.Value != "hello" {
		t.Fatalf("expected value 'hello', got %q", c.Value)
	}
	if !c.CreatedAt.Equal(c.UpdatedAt) {
		t.Fatalf("expected created_at == updated_at on insert")
	}
}

func TestInMemoryCommentStore_CreateReply(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	root, _ := s.Create(ctx, Comment{VideoID: "video-1", UserID: "user-a", Value: "root"})
	pid := root.ID
	reply, err := s.Create(ctx, Comment{VideoID: "video-1", UserID: "user-b", ParentID: &pid, Value: "reply"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}

	rid := reply.ID
	if _, err := s.Create(ctx, Comment{VideoID: "video-1", UserID: "user-a", ParentID: &rid, Value: "nested"}); !errors.Is(err, ErrNestedReply) {
		t.Fatalf("expected ErrNestedReply, got %v", err)
	}
	missing := "missing"
	if _, err := s.Create(ctx, Comment{VideoID: "video-1", UserID: "user-a", ParentID: &missing, Value: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing parent, got %v", err)
	}
	if _, err := s.Create(ctx, Comment{VideoID: "video-2", UserID: "user-a", ParentID: &pid, Value: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for parent on another video, got %v", err)
	}
}

func TestInMemoryCommentStore_Remove_AuthorOnly(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	c, _ := s.Create(ctx, Comment{VideoID: "video-1", UserID: "user-a", Value: "will delete"})
	pid := c.ID
	reply, _ := s.Create(ctx, Comment{VideoID: "video-1", UserID: "user-b", ParentID: &pid, Value: "reply"})

	if _, err := s.Remove(ctx, c.ID, "user-b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-author, got %v", err)
	}
	removed, err := s.Remove(ctx, c.ID, "user-a")
	if err != nil {
		t.Fatalf("author remove: %v", err)
	}
	if removed.ID != c.ID {
		t.Fatalf("expected removed comment %s, got %s", c.ID, removed.ID)
	}
	if _, ok := s.comments[reply.ID]; ok {
		t.Fatal("expected reply to be removed with its parent")
	}
	if _, err := s.Remove(ctx, c.ID, "user-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestInMemoryCommentStore_ReactToggle(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	c, _ := s.Create(ctx, Comment{VideoID: "video-1", UserID: "user-a", Value: "react to me"})

	st, err := s.React(ctx, c.ID, "user-b", ReactionLike)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if st.Type == nil || *st.Type != ReactionLike {
		t.Fatalf("expected like, got %v", st.Type)
	}

	st, _ = s.React(ctx, c.ID, "user-b", ReactionDislike)
	if st.Type == nil || *st.Type != ReactionDislike {
		t.Fatalf("expected switch to dislike, got %v", st.Type)
	}
	if n := len(s.reactions[c.ID]); n != 1 {
		t.Fatalf("expected one reaction per user, got %d", n)
	}

	st, _ = s.React(ctx, c.ID, "user-b", ReactionDislike)
	if st.Type != nil {
		t.Fatalf("expected toggle off, got %v", *st.Type)
	}

	if _, err := s.React(ctx, "missing", "user-b", ReactionLike); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCommentResource_ListsThroughFeed(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	first, _ := s.Create(ctx, Comment{VideoID: "video-1", UserID: "user-a", Value: "first"})
	second, _ := s.Create(ctx, Comment{VideoID: "video-1", UserID: "user-b", Value: "second"})
	pid := first.ID
	_, _ = s.Create(ctx, Comment{VideoID: "video-1", UserID: "user-b", ParentID: &pid, Value: "reply"})
	_, _ = s.Create(ctx, Comment{VideoID: "video-2", UserID: "user-a", Value: "elsewhere"})
	_, _ = s.React(ctx, first.ID, "user-b", ReactionLike)
	_, _ = s.React(ctx, first.ID, "user-c", ReactionLike)
	_, _ = s.React(ctx, first.ID, "user-d", ReactionDislike)

	b := memfeed.New()
	s.Register(b)
	e := feed.New(b, CommentResource())

	page, err := e.FetchPage(ctx, feed.Request{
		Filters:   []feed.Predicate{feed.Eq("video_id", "video-1"), feed.IsNull("parent_id")},
		Limit:     10,
		ViewerID:  "user-b",
		WithTotal: true,
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 top-level comments, got %d", len(page.Items))
	}
	if page.Items[0].ID != second.ID || page.Items[1].ID != first.ID {
		t.Fatalf("unexpected order: %s, %s", page.Items[0].ID, page.Items[1].ID)
	}
	if page.TotalCount == nil || *page.TotalCount != 2 {
		t.Fatalf("expected total 2, got %v", page.TotalCount)
	}
	if page.NextCursor != nil {
		t.Fatal("expected no next cursor")
	}

	got := page.Items[1]
	if got.LikeCount != 2 || got.DislikeCount != 1 || got.ReplyCount != 1 {
		t.Fatalf("unexpected counts: like=%d dislike=%d reply=%d", got.LikeCount, got.DislikeCount, got.ReplyCount)
	}
	if got.ViewerReaction == nil || *got.ViewerReaction != ReactionLike {
		t.Fatalf("expected viewer reaction like, got %v", got.ViewerReaction)
	}
	if got.User.Name != "Ann" {
		t.Fatalf("expected author name Ann, got %q", got.User.Name)
	}
	if page.Items[0].ViewerReaction != nil {
		t.Fatal("expected no reaction on the second comment")
	}
}

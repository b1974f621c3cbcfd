package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/memfeed"
)

type memReaction struct {
	Type      ReactionType
	UpdatedAt time.Time
}

// InMemoryCommentStore is a development-only in-memory implementation.
type InMemoryCommentStore struct {
	mu        sync.RWMutex
	now       func() time.Time
	comments  map[string]Comment                // id -> comment
	reactions map[string]map[string]memReaction // commentID -> userID -> reaction
	authors   map[string]Author                 // userID -> author
}

func NewInMemoryCommentStore() *InMemoryCommentStore {
	return &InMemoryCommentStore{
		now:       func() time.Time { return time.Now().UTC() },
		comments:  make(map[string]Comment),
		reactions: make(map[string]map[string]memReaction),
		authors:   make(map[string]Author),
	}
}

// PutAuthor records display data for a user id.
func (s *InMemoryCommentStore) PutAuthor(a Author) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authors[a.ID] = a
}

func (s *InMemoryCommentStore) Create(_ context.Context, c Comment) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ParentID != nil {
		parent, ok := s.comments[*c.ParentID]
		if !ok || parent.VideoID != c.VideoID {
			return Comment{}, ErrNotFound
		}
		if parent.ParentID != nil {
			return Comment{}, ErrNestedReply
		}
	}
	c.ID = uuid.New().String()
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	s.comments[c.ID] = c
	return c, nil
}

func (s *InMemoryCommentStore) Remove(_ context.Context, commentID, userID string) (Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.comments[commentID]
	if !ok || c.UserID != userID {
		return Comment{}, ErrNotFound
	}
	delete(s.comments, commentID)
	delete(s.reactions, commentID)
	for id, reply := range s.comments {
		if reply.ParentID != nil && *reply.ParentID == commentID {
			delete(s.comments, id)
			delete(s.reactions, id)
		}
	}
	return c, nil
}

func (s *InMemoryCommentStore) React(_ context.Context, commentID, userID string, t ReactionType) (ReactionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[commentID]; !ok {
		return ReactionState{}, ErrNotFound
	}
	byUser := s.reactions[commentID]
	if byUser == nil {
		byUser = make(map[string]memReaction)
		s.reactions[commentID] = byUser
	}
	state := ReactionState{CommentID: commentID}
	if cur, ok := byUser[userID]; ok && cur.Type == t {
		delete(byUser, userID)
		return state, nil
	}
	byUser[userID] = memReaction{Type: t, UpdatedAt: s.now()}
	state.Type = &t
	return state, nil
}

// Register exposes the store's tables to a memfeed backend.
func (s *InMemoryCommentStore) Register(b *memfeed.Backend) {
	b.Register(TableComments, s.commentRecords)
	b.Register(TableCommentReactions, s.reactionRecords)
}

func (s *InMemoryCommentStore) commentRecords() []feed.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Record, 0, len(s.comments))
	for _, c := range s.comments {
		var parent any
		if c.ParentID != nil {
			parent = *c.ParentID
		}
		a := s.authors[c.UserID]
		out = append(out, feed.Record{
			"id":             c.ID,
			"video_id":       c.VideoID,
			"parent_id":      parent,
			"user_id":        c.UserID,
			"value":          c.Value,
			"created_at":     c.CreatedAt,
			"updated_at":     c.UpdatedAt,
			"user_name":      a.Name,
			"user_image_url": a.ImageURL,
		})
	}
	return out
}

func (s *InMemoryCommentStore) reactionRecords() []feed.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []feed.Record
	for commentID, byUser := range s.reactions {
		for userID, r := range byUser {
			out = append(out, feed.Record{
				"comment_id": commentID,
				"user_id":    userID,
				"type":       string(r.Type),
				"updated_at": r.UpdatedAt,
			})
		}
	}
	return out
}

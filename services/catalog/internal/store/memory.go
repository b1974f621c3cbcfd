package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/video-platform/internal/feed"
	"github.com/example/video-platform/internal/feed/memfeed"
)

type pairKey struct{ A, B string }

type memReaction struct {
	Type      ReactionType
	CreatedAt time.Time
	UpdatedAt time.Time
}

type memView struct {
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InMemoryCatalogStore is a development-only in-memory implementation.
type InMemoryCatalogStore struct {
	mu             sync.RWMutex
	now            func() time.Time
	users          map[string]User
	categories     map[string]Category
	videos         map[string]Video
	views          map[pairKey]memView       // (user, video)
	reactions      map[pairKey]memReaction   // (user, video)
	subscriptions  map[pairKey]Subscription  // (viewer, creator)
	playlists      map[string]Playlist       // id -> playlist
	playlistVideos map[pairKey]PlaylistVideo // (playlist, video)
}

func NewInMemoryCatalogStore() *InMemoryCatalogStore {
	return &InMemoryCatalogStore{
		now:            func() time.Time { return time.Now().UTC() },
		users:          make(map[string]User),
		categories:     make(map[string]Category),
		videos:         make(map[string]Video),
		views:          make(map[pairKey]memView),
		reactions:      make(map[pairKey]memReaction),
		subscriptions:  make(map[pairKey]Subscription),
		playlists:      make(map[string]Playlist),
		playlistVideos: make(map[pairKey]PlaylistVideo),
	}
}

// PutUser records display data for a user id.
func (s *InMemoryCatalogStore) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// touchUser registers an acting user the identity provider has not
// mirrored yet. Callers hold the write lock.
func (s *InMemoryCatalogStore) touchUser(id string) {
	if _, ok := s.users[id]; !ok {
		s.users[id] = User{ID: id}
	}
}

// ── Videos ─────────────────────────────────────────────────────────────────

func (s *InMemoryCatalogStore) CreateVideo(_ context.Context, userID string) (Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchUser(userID)
	now := s.now()
	v := Video{
		ID:         uuid.NewString(),
		Title:      DefaultVideoTitle,
		Visibility: VisibilityPrivate,
		UserID:     userID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.videos[v.ID] = v
	return v, nil
}

func (s *InMemoryCatalogStore) UpdateVideo(_ context.Context, id, userID string, p VideoPatch) (Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok || v.UserID != userID {
		return Video{}, ErrNotFound
	}
	if p.CategoryID != nil {
		if _, ok := s.categories[*p.CategoryID]; !ok {
			return Video{}, ErrNotFound
		}
	}
	p.apply(&v)
	v.UpdatedAt = s.now()
	s.videos[id] = v
	return v, nil
}

func (s *InMemoryCatalogStore) GetVideo(_ context.Context, id, viewerID string) (Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	if !ok || (v.Visibility != VisibilityPublic && v.UserID != viewerID) {
		return Video{}, ErrNotFound
	}
	return v, nil
}

func (s *InMemoryCatalogStore) ReactVideo(_ context.Context, videoID, userID string, t ReactionType) (ReactionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[videoID]; !ok {
		return ReactionState{}, ErrNotFound
	}
	s.touchUser(userID)
	key := pairKey{userID, videoID}
	state := ReactionState{VideoID: videoID}
	cur, ok := s.reactions[key]
	if ok && cur.Type == t {
		delete(s.reactions, key)
		return state, nil
	}
	now := s.now()
	if !ok {
		cur.CreatedAt = now
	}
	cur.Type = t
	cur.UpdatedAt = now
	s.reactions[key] = cur
	state.Type = &t
	return state, nil
}

func (s *InMemoryCatalogStore) RecordViews(_ context.Context, views []View) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range views {
		if _, ok := s.videos[v.VideoID]; !ok {
			continue
		}
		s.touchUser(v.UserID)
		at := v.At
		if at.IsZero() {
			at = s.now()
		}
		key := pairKey{v.UserID, v.VideoID}
		cur, ok := s.views[key]
		if !ok {
			cur.CreatedAt = at
		}
		if at.After(cur.UpdatedAt) {
			cur.UpdatedAt = at
		}
		s.views[key] = cur
		n++
	}
	return n, nil
}

// ── Categories ─────────────────────────────────────────────────────────────

func (s *InMemoryCatalogStore) ListCategories(_ context.Context) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryCatalogStore) CreateCategory(_ context.Context, name string, description *string) (Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.Name == name {
			return Category{}, ErrConflict
		}
	}
	now := s.now()
	c := Category{ID: uuid.NewString(), Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	s.categories[c.ID] = c
	return c, nil
}

// ── Subscriptions ──────────────────────────────────────────────────────────

func (s *InMemoryCatalogStore) Subscribe(_ context.Context, viewerID, creatorID string) (Subscription, error) {
	if viewerID == creatorID {
		return Subscription{}, ErrSelfSubscription
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[creatorID]; !ok {
		return Subscription{}, ErrNotFound
	}
	key := pairKey{viewerID, creatorID}
	if _, ok := s.subscriptions[key]; ok {
		return Subscription{}, ErrConflict
	}
	s.touchUser(viewerID)
	now := s.now()
	sub := Subscription{ViewerID: viewerID, CreatorID: creatorID, CreatedAt: now, UpdatedAt: now}
	s.subscriptions[key] = sub
	return sub, nil
}

func (s *InMemoryCatalogStore) Unsubscribe(_ context.Context, viewerID, creatorID string) (Subscription, error) {
	if viewerID == creatorID {
		return Subscription{}, ErrSelfSubscription
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{viewerID, creatorID}
	sub, ok := s.subscriptions[key]
	if !ok {
		return Subscription{}, ErrNotFound
	}
	delete(s.subscriptions, key)
	return sub, nil
}

// ── Playlists ──────────────────────────────────────────────────────────────

func (s *InMemoryCatalogStore) CreatePlaylist(_ context.Context, userID, name string, description *string) (Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchUser(userID)
	now := s.now()
	p := Playlist{ID: uuid.NewString(), Name: name, Description: description, UserID: userID, CreatedAt: now, UpdatedAt: now}
	s.playlists[p.ID] = p
	return p, nil
}

func (s *InMemoryCatalogStore) GetPlaylist(_ context.Context, id, userID string) (Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownPlaylist(id, userID)
}

func (s *InMemoryCatalogStore) ownPlaylist(id, userID string) (Playlist, error) {
	p, ok := s.playlists[id]
	if !ok || p.UserID != userID {
		return Playlist{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemoryCatalogStore) DeletePlaylist(_ context.Context, id, userID string) (Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.ownPlaylist(id, userID)
	if err != nil {
		return Playlist{}, err
	}
	delete(s.playlists, id)
	for k := range s.playlistVideos {
		if k.A == id {
			delete(s.playlistVideos, k)
		}
	}
	return p, nil
}

func (s *InMemoryCatalogStore) AddVideo(_ context.Context, playlistID, videoID, userID string) (PlaylistVideo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ownPlaylist(playlistID, userID); err != nil {
		return PlaylistVideo{}, err
	}
	if _, ok := s.videos[videoID]; !ok {
		return PlaylistVideo{}, ErrNotFound
	}
	key := pairKey{playlistID, videoID}
	if _, ok := s.playlistVideos[key]; ok {
		return PlaylistVideo{}, ErrConflict
	}
	now := s.now()
	pv := PlaylistVideo{PlaylistID: playlistID, VideoID: videoID, CreatedAt: now, UpdatedAt: now}
	s.playlistVideos[key] = pv
	return pv, nil
}

func (s *InMemoryCatalogStore) RemoveVideo(_ context.Context, playlistID, videoID, userID string) (PlaylistVideo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ownPlaylist(playlistID, userID); err != nil {
		return PlaylistVideo{}, err
	}
	key := pairKey{playlistID, videoID}
	pv, ok := s.playlistVideos[key]
	if !ok {
		return PlaylistVideo{}, ErrNotFound
	}
	delete(s.playlistVideos, key)
	return pv, nil
}

// ── Feed tables ────────────────────────────────────────────────────────────

// Register exposes the store's tables, and the joined views the list
// resources read, to a memfeed backend.
func (s *InMemoryCatalogStore) Register(b *memfeed.Backend) {
	b.Register(TableVideos, s.videoRecords)
	b.Register(TableVideoViews, s.viewRecords)
	b.Register(TableVideoReactions, s.reactionRecords)
	b.Register(TableSubscriptions, s.subscriptionRecords)
	b.Register(TablePlaylists, s.playlistRecords)
	b.Register(TablePlaylistVideos, s.playlistVideoRecords)
	b.Register(TableHistory, s.historyRecords)
	b.Register(TableLiked, s.likedRecords)
	b.Register(TablePlaylistItems, s.playlistItemRecords)
}

func optional(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// videoRecord joins a video with its uploader. Callers hold the read lock.
func (s *InMemoryCatalogStore) videoRecord(v Video) feed.Record {
	u := s.users[v.UserID]
	return feed.Record{
		"id":             v.ID,
		"title":          v.Title,
		"description":    optional(v.Description),
		"thumbnail_url":  optional(v.ThumbnailURL),
		"duration_ms":    v.DurationMS,
		"visibility":     string(v.Visibility),
		"user_id":        v.UserID,
		"category_id":    optional(v.CategoryID),
		"created_at":     v.CreatedAt,
		"updated_at":     v.UpdatedAt,
		"user_name":      u.Name,
		"user_image_url": u.ImageURL,
	}
}

func (s *InMemoryCatalogStore) videoRecords() []feed.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Record, 0, len(s.videos))
	for _, v := range s.videos {
		out = append(out, s.videoRecord(v))
	}
	return out
}

func (s *InMemoryCatalogStore) viewRecords() []feed.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Record, 0, len(s.views))
	for k, v := range s.views {
		out = append(out, feed.Record{"user_id": k.A, "video_id": k.B, "updated_at": v.UpdatedAt})
	}
	return out
}

func (s *InMemoryCatalogStore) reactionRecords() []feed.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Record, 0, len(s.reactions))
	for k, r := range s.reactions {
		out = append(out, feed.Record{"user_id": k.A, "video_id": k.B, "type": string(r.Type)})
	}
	return out
}

func (s *InMemoryCatalogStore) subscriptionRecords() []feed.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Record, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		u := s.users[sub.CreatorID]
		out = append(out, feed.Record{
			"viewer_id":      sub.ViewerID,
			"creator_id":     sub.CreatorID,
			"created_at":     sub.CreatedAt,
			"updated_at":     sub.UpdatedAt,
			"user_name":      u.Name,
			"user_image_url": u.ImageURL,
		})
	}
	return out
}

func (s *InMemoryCatalogStore) playlistRecords() []feed.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Record, 0, len(s.playlists))
	for _, p := range s.playlists {
		u := s.users[p.UserID]
		out = append(out, feed.Record{
			"id":             p.ID,
			"name":           p.Name,
			"description":    optional(p.Description),
			"user_id":        p.UserID,
			"created_at":     p.CreatedAt,
			"updated_at":     p.UpdatedAt,
			"user_name":      u.Name,
			"user_image_url": u.ImageURL,
		})
	}
	return out
}

func (s *InMemoryCatalogStore) playlistVideoRecords() []feed.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Record, 0, len(s.playlistVideos))
	for k := range s.playlistVideos {
		out = append(out, feed.Record{"playlist_id": k.A, "video_id": k.B})
	}
	return out
}

func (s *InMemoryCatalogStore) historyRecords() []feed.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Record, 0, len(s.views))
	for k, view := range s.views {
		v, ok := s.videos[k.B]
		if !ok {
			continue
		}
		rec := s.videoRecord(v)
		rec["viewer_id"] = k.A
		rec["viewed_at"] = view.UpdatedAt
		out = append(out, rec)
	}
	return out
}

func (s *InMemoryCatalogStore) likedRecords() []feed.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Record, 0, len(s.reactions))
	for k, r := range s.reactions {
		v, ok := s.videos[k.B]
		if !ok {
			continue
		}
		rec := s.videoRecord(v)
		rec["viewer_id"] = k.A
		rec["reaction_type"] = string(r.Type)
		rec["liked_at"] = r.UpdatedAt
		out = append(out, rec)
	}
	return out
}

func (s *InMemoryCatalogStore) playlistItemRecords() []feed.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]feed.Record, 0, len(s.playlistVideos))
	for k, pv := range s.playlistVideos {
		v, ok := s.videos[k.B]
		if !ok {
			continue
		}
		rec := s.videoRecord(v)
		rec["playlist_id"] = k.A
		rec["added_at"] = pv.UpdatedAt
		out = append(out, rec)
	}
	return out
}

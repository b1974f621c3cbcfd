// Package analytics provides a fire-and-forget NATS publisher for product
// analytics events.
package analytics

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectVideoViewed      = "analytics.catalog.video_viewed"
	SubjectVideoReacted     = "analytics.catalog.video_reacted"
	SubjectSearchPerformed  = "analytics.catalog.search_performed"
	SubjectSubscribed       = "analytics.catalog.subscribed"
	SubjectCommentCreated   = "analytics.social.comment_created"
	SubjectCommentReacted   = "analytics.social.comment_reacted"
	SubjectPlaylistModified = "analytics.catalog.playlist_modified"
)

// Event is the canonical envelope sent to all analytics.* subjects.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	UserID     string         `json:"user_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Publisher publishes events to JetStream. A nil *Publisher and one built
// without a JetStream context are both no-ops.
type Publisher struct {
	js  nats.JetStreamContext
	log *zap.Logger
	now func() time.Time
}

func New(js nats.JetStreamContext, log *zap.Logger) *Publisher {
	return &Publisher{js: js, log: log, now: time.Now}
}

// Publish never reports failure to the caller; problems are logged.
func (p *Publisher) Publish(subject, eventName, userID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	data, err := json.Marshal(p.event(eventName, userID, props))
	if err != nil {
		p.log.Warn("analytics: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("analytics: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

func (p *Publisher) event(name, userID string, props map[string]any) Event {
	return Event{
		EventID:    uuid.NewString(),
		EventName:  name,
		UserID:     userID,
		OccurredAt: p.now().UTC(),
		Properties: props,
	}
}

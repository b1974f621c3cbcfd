// Package worker records video views off the request path: handlers publish
// view events to JetStream and the consumer applies them to the store in
// batches.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/video-platform/internal/platform/idempotency"
	"github.com/example/video-platform/internal/platform/metrics"
	"github.com/example/video-platform/services/catalog/internal/store"
)

const (
	SubjectRecordView = "catalog.views.record"
	durableName       = "catalog_views"
)

// ViewEvent is the payload published for every recorded view.
type ViewEvent struct {
	EventID string    `json:"event_id"`
	UserID  string    `json:"user_id"`
	VideoID string    `json:"video_id"`
	At      time.Time `json:"at"`
}

// Publisher queues views on JetStream.
type Publisher struct {
	JS nats.JetStreamContext
}

func (p Publisher) RecordView(_ context.Context, v store.View) error {
	ev := ViewEvent{EventID: uuid.NewString(), UserID: v.UserID, VideoID: v.VideoID, At: v.At}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.JS.Publish(SubjectRecordView, data, nats.MsgId(ev.EventID))
	return err
}

// Direct writes views synchronously; used when NATS is not configured.
type Direct struct {
	Store store.Videos
}

func (d Direct) RecordView(ctx context.Context, v store.View) error {
	_, err := d.Store.RecordViews(ctx, []store.View{v})
	return err
}

// delivery is one fetched message and its acknowledgement hooks.
type delivery struct {
	data []byte
	ack  func() error
	nak  func() error
	term func() error
}

func fromMsg(m *nats.Msg) delivery {
	return delivery{
		data: m.Data,
		ack:  func() error { return m.Ack() },
		nak:  func() error { return m.Nak() },
		term: func() error { return m.Term() },
	}
}

// Consumer applies view events in batches. Each event id is applied at most
// once; a failed batch releases its ids and is redelivered.
type Consumer struct {
	JS        nats.JetStreamContext
	Store     store.Videos
	Idem      idempotency.Store
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	BatchSize int
	MaxWait   time.Duration
}

func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.JS.PullSubscribe(SubjectRecordView, durableName)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := sub.Fetch(c.BatchSize, nats.MaxWait(c.MaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			c.Log.Warn("views consumer: fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		batch := make([]delivery, len(msgs))
		for i, m := range msgs {
			batch[i] = fromMsg(m)
		}
		c.handle(ctx, batch)
	}
}

func (c *Consumer) handle(ctx context.Context, batch []delivery) {
	var (
		views   []store.View
		pending []delivery
		ids     []string
	)
	for _, d := range batch {
		var ev ViewEvent
		if err := json.Unmarshal(d.data, &ev); err != nil || ev.EventID == "" || ev.UserID == "" || ev.VideoID == "" {
			c.Log.Warn("views consumer: dropping malformed event", zap.ByteString("data", d.data))
			c.settle(d.term, "invalid")
			continue
		}
		dup, err := c.Idem.Check(ctx, ev.EventID)
		if err != nil {
			c.Log.Warn("views consumer: idempotency check failed", zap.String("event_id", ev.EventID), zap.Error(err))
			c.settle(d.nak, "error")
			continue
		}
		if dup {
			c.settle(d.ack, "duplicate")
			continue
		}
		views = append(views, store.View{UserID: ev.UserID, VideoID: ev.VideoID, At: ev.At})
		pending = append(pending, d)
		ids = append(ids, ev.EventID)
	}
	if len(views) == 0 {
		return
	}

	if _, err := c.Store.RecordViews(ctx, views); err != nil {
		c.Log.Error("views consumer: record failed", zap.Int("views", len(views)), zap.Error(err))
		for i, d := range pending {
			if err := c.Idem.Forget(ctx, ids[i]); err != nil {
				c.Log.Warn("views consumer: forget failed", zap.String("event_id", ids[i]), zap.Error(err))
			}
			c.settle(d.nak, "error")
		}
		return
	}
	for _, d := range pending {
		c.settle(d.ack, "ok")
	}
}

func (c *Consumer) settle(fn func() error, result string) {
	if err := fn(); err != nil {
		c.Log.Warn("views consumer: settle failed", zap.String("result", result), zap.Error(err))
	}
	if c.Metrics != nil {
		c.Metrics.EventsProcessed.WithLabelValues(SubjectRecordView, result).Inc()
	}
}

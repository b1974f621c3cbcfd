// Package outbox relays catalog events written alongside video mutations to
// JetStream.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/video-platform/internal/platform/natsconn"
)

// Stream carries every catalog.* subject: outbox events and view records.
var Stream = natsconn.StreamSpec{
	Name:     "CATALOG_EVENTS",
	Subjects: []string{"catalog.>"},
	MaxAge:   7 * 24 * time.Hour,
}

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// JetStream is the publishing half of nats.JetStreamContext.
type JetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

type Publisher struct {
	Log          *zap.Logger
	DB           DB
	JS           JetStream
	BatchSize    int
	PollInterval time.Duration
}

type outboxRow struct {
	ID        string
	EventType string
	Payload   json.RawMessage
}

func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := p.flushOnce(ctx)
			if err != nil {
				p.Log.Warn("outbox flush failed", zap.Error(err))
				continue
			}
			if n > 0 {
				p.Log.Debug("outbox flushed", zap.Int("events", n))
			}
		}
	}
}

// flushOnce publishes one batch of pending rows and marks them published.
// Rows are locked with SKIP LOCKED so replicas split the backlog; the row id
// doubles as the JetStream message id for de-duplication on retry.
func (p *Publisher) flushOnce(ctx context.Context) (int, error) {
	var published int
	err := pgx.BeginFunc(ctx, p.DB, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
SELECT id::text, event_type, payload
FROM catalog_outbox
WHERE published_at IS NULL
ORDER BY created_at
LIMIT $1
FOR UPDATE SKIP LOCKED
`, p.BatchSize)
		if err != nil {
			return err
		}
		items, err := pgx.CollectRows(rows, pgx.RowToStructByPos[outboxRow])
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		ids := make([]string, 0, len(items))
		for _, item := range items {
			if _, err := p.JS.Publish(item.EventType, item.Payload, nats.MsgId(item.ID)); err != nil {
				return err
			}
			ids = append(ids, item.ID)
		}
		if _, err := tx.Exec(ctx, `UPDATE catalog_outbox SET published_at = now() WHERE id = ANY($1::uuid[])`, ids); err != nil {
			return err
		}
		published = len(ids)
		return nil
	})
	return published, err
}

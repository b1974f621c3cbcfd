package feed

import (
	"fmt"
	"time"
)

// Cursor is the ordering key and id of the last row of a page. It is
// positional: the row it came from may since have been deleted.
type Cursor struct {
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `json:"id"`
}

// ParseCursor builds a cursor from its two transport fields. Both empty
// means no cursor.
func ParseCursor(id, updatedAt string) (*Cursor, error) {
	if id == "" && updatedAt == "" {
		return nil, nil
	}
	if id == "" {
		return nil, &ValidationError{Field: "cursor_id", Reason: "required with cursor_updated_at"}
	}
	if updatedAt == "" {
		return nil, &ValidationError{Field: "cursor_updated_at", Reason: "required with cursor_id"}
	}
	ts, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, &ValidationError{Field: "cursor_updated_at", Reason: "must be an RFC3339 timestamp"}
	}
	return &Cursor{UpdatedAt: ts.UTC(), ID: id}, nil
}

// Before reports whether key (t, id) sorts strictly after c in descending
// order, i.e. whether it belongs to a later page.
func (c Cursor) Before(t time.Time, id string) bool {
	if t.Before(c.UpdatedAt) {
		return true
	}
	return t.Equal(c.UpdatedAt) && id < c.ID
}

func cursorFrom(rec Record, o Order) (*Cursor, error) {
	ts, ok := rec[o.Key].(time.Time)
	if !ok {
		return nil, fmt.Errorf("feed: ordering key %q is %T, want time.Time", o.Key, rec[o.Key])
	}
	id, ok := rec[o.ID].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("feed: tiebreaker %q is %T, want non-empty string", o.ID, rec[o.ID])
	}
	return &Cursor{UpdatedAt: ts.UTC(), ID: id}, nil
}

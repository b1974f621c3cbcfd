// Package feed implements keyset pagination with per-page aggregates and
// viewer-scoped attachments over a pluggable storage backend.
//
// A list endpoint is described by a Resource: the logical table it reads,
// its ordering key, the filters it requires, and the related counts and
// lookups that decorate every row. The Engine turns a Request into exactly
// one base query (plus an optional total count), trims the overfetched row,
// and derives the cursor for the next page.
package feed

import (
	"context"
	"fmt"
	"time"
)

const (
	MinLimit     = 1
	MaxLimit     = 100
	DefaultLimit = 20
)

// ScopeViewer binds an attachment to Request.ViewerID.
const ScopeViewer = "viewer"

// Record is one backend row keyed by logical field name.
type Record map[string]any

func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (r Record) StringPtr(field string) *string {
	v, ok := r[field].(string)
	if !ok {
		return nil
	}
	return &v
}

func (r Record) Time(field string) time.Time {
	t, _ := r[field].(time.Time)
	return t
}

func (r Record) Int(field string) int64 {
	switch v := r[field].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

func (r Record) Bool(field string) bool {
	b, _ := r[field].(bool)
	return b
}

// Order names the descending ordering key and the unique tiebreaker.
type Order struct {
	Key string
	ID  string
}

// Aggregate counts rows of Table whose Column equals the row's By field.
type Aggregate struct {
	Name   string
	Table  string
	Column string
	By     string
	Where  []Predicate
}

// Attachment looks up at most one related record per row, scoped to either
// the viewer or a named request scope. An empty Value yields an existence
// flag instead of a column value.
type Attachment struct {
	Name        string
	Table       string
	Column      string
	By          string
	ScopeColumn string
	Scope       string
	Value       string
}

type Resource[T any] struct {
	Name           string
	Table          string
	Order          Order
	Required       []string
	RequiresViewer bool
	Aggregates     []Aggregate
	Attachments    []Attachment
	Decode         func(Record) (T, error)
}

type Request struct {
	Filters   []Predicate
	Cursor    *Cursor
	Limit     int
	ViewerID  string
	Scope     map[string]string
	WithTotal bool
}

type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *Cursor `json:"next_cursor"`
	TotalCount *int64  `json:"total_count,omitempty"`
}

// Query is the single base read issued per page.
type Query struct {
	Table   string
	Filters []Predicate
	Order   Order
	After   *Cursor
	Limit   int
}

type CountQuery struct {
	Table   string
	Filters []Predicate
}

type RelatedCount struct {
	Table  string
	Column string
	Keys   []string
	Where  []Predicate
}

type RelatedLookup struct {
	Table       string
	Column      string
	Keys        []string
	ScopeColumn string
	Scope       string
	Value       string
}

// Backend executes feed queries. Implementations must apply the seek
// predicate, the (key DESC, id DESC) ordering and the limit exactly.
type Backend interface {
	Select(ctx context.Context, q Query) ([]Record, error)
	Count(ctx context.Context, q CountQuery) (int64, error)
	CountRelated(ctx context.Context, q RelatedCount) (map[string]int64, error)
	LookupRelated(ctx context.Context, q RelatedLookup) (map[string]any, error)
}

// Observer receives one call per FetchPage.
type Observer interface {
	ObservePage(resource string, items int, took time.Duration, err error)
}

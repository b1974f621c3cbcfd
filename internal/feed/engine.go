package feed

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

type Option func(*options)

type options struct {
	observer Observer
}

func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// Engine fetches pages of one resource. It holds no per-request state and
// is safe for concurrent use.
type Engine[T any] struct {
	backend Backend
	res     Resource[T]
	opts    options
}

func New[T any](backend Backend, res Resource[T], opts ...Option) *Engine[T] {
	if res.Order.ID == "" {
		res.Order.ID = "id"
	}
	for i := range res.Aggregates {
		if res.Aggregates[i].By == "" {
			res.Aggregates[i].By = res.Order.ID
		}
	}
	for i := range res.Attachments {
		if res.Attachments[i].By == "" {
			res.Attachments[i].By = res.Order.ID
		}
	}
	e := &Engine[T]{backend: backend, res: res}
	for _, o := range opts {
		o(&e.opts)
	}
	return e
}

func (e *Engine[T]) Resource() string { return e.res.Name }

func (e *Engine[T]) FetchPage(ctx context.Context, req Request) (Page[T], error) {
	start := time.Now()
	page, err := e.fetch(ctx, req)
	if e.opts.observer != nil {
		e.opts.observer.ObservePage(e.res.Name, len(page.Items), time.Since(start), err)
	}
	return page, err
}

// Validate checks a request without touching the backend.
func (e *Engine[T]) Validate(req Request) error {
	if e.res.RequiresViewer && req.ViewerID == "" {
		return ErrUnauthorized
	}
	if err := ValidateLimit(req.Limit); err != nil {
		return err
	}
	if c := req.Cursor; c != nil {
		if c.ID == "" {
			return &ValidationError{Field: "cursor_id", Reason: "must not be empty"}
		}
		if c.UpdatedAt.IsZero() {
			return &ValidationError{Field: "cursor_updated_at", Reason: "must not be empty"}
		}
	}
	for _, field := range e.res.Required {
		if !hasFilter(req.Filters, field) {
			return &ValidationError{Field: field, Reason: "required"}
		}
	}
	return nil
}

// ValidateLimit rejects page sizes outside [MinLimit, MaxLimit]. Limits
// are never clamped.
func ValidateLimit(limit int) error {
	if limit < MinLimit || limit > MaxLimit {
		return &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between %d and %d", MinLimit, MaxLimit)}
	}
	return nil
}

func hasFilter(filters []Predicate, field string) bool {
	for _, p := range filters {
		if p.Field != field {
			continue
		}
		switch p.Op {
		case OpIsNull:
			return true
		case OpEq:
			if s, ok := p.Value.(string); ok {
				return s != ""
			}
			return p.Value != nil
		}
	}
	return false
}

func (e *Engine[T]) fetch(ctx context.Context, req Request) (Page[T], error) {
	if err := e.Validate(req); err != nil {
		return Page[T]{}, err
	}

	var (
		rows  []Record
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := e.backend.Select(gctx, Query{
			Table:   e.res.Table,
			Filters: req.Filters,
			Order:   e.res.Order,
			After:   req.Cursor,
			Limit:   req.Limit + 1,
		})
		if err != nil {
			return fmt.Errorf("select %s: %w", e.res.Name, err)
		}
		rows = r
		return nil
	})
	if req.WithTotal {
		g.Go(func() error {
			n, err := e.backend.Count(gctx, CountQuery{Table: e.res.Table, Filters: req.Filters})
			if err != nil {
				return fmt.Errorf("count %s: %w", e.res.Name, err)
			}
			total = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Page[T]{}, err
	}

	page := Page[T]{Items: make([]T, 0, min(len(rows), req.Limit))}
	if req.WithTotal {
		page.TotalCount = &total
	}
	if len(rows) > req.Limit {
		rows = rows[:req.Limit]
		next, err := cursorFrom(rows[len(rows)-1], e.res.Order)
		if err != nil {
			return Page[T]{}, err
		}
		page.NextCursor = next
	}
	if len(rows) == 0 {
		return page, nil
	}

	if err := e.attach(ctx, req, rows); err != nil {
		return Page[T]{}, err
	}
	for _, rec := range rows {
		item, err := e.res.Decode(rec)
		if err != nil {
			return Page[T]{}, fmt.Errorf("decode %s: %w", e.res.Name, err)
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// attach runs one related query per aggregate and per scoped attachment,
// restricted to the keys of the rows on this page.
func (e *Engine[T]) attach(ctx context.Context, req Request, rows []Record) error {
	counts := make([]map[string]int64, len(e.res.Aggregates))
	lookups := make([]map[string]any, len(e.res.Attachments))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range e.res.Aggregates {
		g.Go(func() error {
			m, err := e.backend.CountRelated(gctx, RelatedCount{
				Table:  a.Table,
				Column: a.Column,
				Keys:   keys(rows, a.By),
				Where:  a.Where,
			})
			if err != nil {
				return fmt.Errorf("aggregate %s.%s: %w", e.res.Name, a.Name, err)
			}
			counts[i] = m
			return nil
		})
	}
	for i, a := range e.res.Attachments {
		scope := scopeValue(req, a.Scope)
		if scope == "" {
			continue
		}
		g.Go(func() error {
			m, err := e.backend.LookupRelated(gctx, RelatedLookup{
				Table:       a.Table,
				Column:      a.Column,
				Keys:        keys(rows, a.By),
				ScopeColumn: a.ScopeColumn,
				Scope:       scope,
				Value:       a.Value,
			})
			if err != nil {
				return fmt.Errorf("attachment %s.%s: %w", e.res.Name, a.Name, err)
			}
			lookups[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, rec := range rows {
		for i, a := range e.res.Aggregates {
			rec[a.Name] = counts[i][rec.String(a.By)]
		}
		for i, a := range e.res.Attachments {
			m := lookups[i]
			switch {
			case m == nil:
				rec[a.Name] = nil
			case a.Value == "":
				_, ok := m[rec.String(a.By)]
				rec[a.Name] = ok
			default:
				rec[a.Name] = m[rec.String(a.By)]
			}
		}
	}
	return nil
}

func scopeValue(req Request, scope string) string {
	if scope == ScopeViewer {
		return req.ViewerID
	}
	return req.Scope[scope]
}

func keys(rows []Record, field string) []string {
	seen := make(map[string]struct{}, len(rows))
	out := make([]string, 0, len(rows))
	for _, rec := range rows {
		k := rec.String(field)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

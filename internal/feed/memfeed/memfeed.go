// Package memfeed evaluates feed queries against in-memory table snapshots.
// It backs the services when no database is configured and drives the
// engine's property tests.
package memfeed

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/video-platform/internal/feed"
)

// Source returns a snapshot of a table. Records are copied before the
// engine decorates them, so sources may return shared maps.
type Source func() []feed.Record

type Backend struct {
	mu     sync.RWMutex
	tables map[string]Source
}

func New() *Backend {
	return &Backend{tables: make(map[string]Source)}
}

func (b *Backend) Register(table string, src Source) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[table] = src
}

// Static registers a fixed set of records.
func (b *Backend) Static(table string, recs ...feed.Record) {
	b.Register(table, func() []feed.Record { return recs })
}

func (b *Backend) source(table string) (Source, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	src, ok := b.tables[table]
	if !ok {
		return nil, fmt.Errorf("memfeed: unknown table %q", table)
	}
	return src, nil
}

func (b *Backend) filter(table string, preds []feed.Predicate) ([]feed.Record, error) {
	src, err := b.source(table)
	if err != nil {
		return nil, err
	}
	var out []feed.Record
	for _, rec := range src() {
		ok, err := b.match(rec, preds)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (b *Backend) match(rec feed.Record, preds []feed.Predicate) (bool, error) {
	for _, p := range preds {
		v, present := rec[p.Field]
		switch p.Op {
		case feed.OpEq:
			if !present || !equal(v, p.Value) {
				return false, nil
			}
		case feed.OpNe:
			if present && v != nil && equal(v, p.Value) {
				return false, nil
			}
		case feed.OpIsNull:
			if present && v != nil {
				return false, nil
			}
		case feed.OpNotNull:
			if !present || v == nil {
				return false, nil
			}
		case feed.OpContains:
			s, _ := v.(string)
			needle, _ := p.Value.(string)
			if !strings.Contains(strings.ToLower(s), strings.ToLower(needle)) {
				return false, nil
			}
		case feed.OpIn:
			if p.Set == nil {
				return false, fmt.Errorf("memfeed: %s: in predicate without set", p.Field)
			}
			set, err := b.filter(p.Set.Table, p.Set.Filters)
			if err != nil {
				return false, err
			}
			found := false
			for _, s := range set {
				if equal(s[p.Set.Column], v) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("memfeed: %s: unsupported op %s", p.Field, p.Op)
		}
	}
	return true, nil
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if a == b {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func (b *Backend) Select(ctx context.Context, q feed.Query) ([]feed.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := b.filter(q.Table, q.Filters)
	if err != nil {
		return nil, err
	}
	key := func(r feed.Record) (time.Time, string) {
		return r.Time(q.Order.Key), r.String(q.Order.ID)
	}
	if q.After != nil {
		kept := rows[:0:0]
		for _, r := range rows {
			if q.After.Before(key(r)) {
				kept = append(kept, r)
			}
		}
		rows = kept
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ti, ii := key(rows[i])
		tj, ij := key(rows[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return ii > ij
	})
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]feed.Record, len(rows))
	for i, r := range rows {
		cp := make(feed.Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out, nil
}

func (b *Backend) Count(ctx context.Context, q feed.CountQuery) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rows, err := b.filter(q.Table, q.Filters)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (b *Backend) CountRelated(ctx context.Context, q feed.RelatedCount) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := b.filter(q.Table, q.Where)
	if err != nil {
		return nil, err
	}
	want := keySet(q.Keys)
	out := make(map[string]int64, len(q.Keys))
	for _, r := range rows {
		k := r.String(q.Column)
		if _, ok := want[k]; ok {
			out[k]++
		}
	}
	return out, nil
}

func (b *Backend) LookupRelated(ctx context.Context, q feed.RelatedLookup) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := b.filter(q.Table, []feed.Predicate{feed.Eq(q.ScopeColumn, q.Scope)})
	if err != nil {
		return nil, err
	}
	want := keySet(q.Keys)
	out := make(map[string]any)
	for _, r := range rows {
		k := r.String(q.Column)
		if _, ok := want[k]; !ok {
			continue
		}
		if q.Value == "" {
			out[k] = true
			continue
		}
		out[k] = r[q.Value]
	}
	return out, nil
}

func keySet(keys []string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

// Package pgfeed executes feed queries against Postgres.
//
// Logical tables and fields are mapped to SQL through a Schema. Only
// expressions from the Schema reach query text; every filter value, cursor
// and key list is bound as a positional parameter.
package pgfeed

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/example/video-platform/internal/feed"
)

type ColumnType int

const (
	Text ColumnType = iota
	UUID
	Timestamp
	Int
	Bool
)

type Column struct {
	Expr string
	Type ColumnType
}

// Table is a FROM clause (joins allowed) and the logical fields it exposes.
type Table struct {
	From    string
	Columns map[string]Column
}

type Schema map[string]Table

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Backend struct {
	db     Querier
	schema Schema
}

func New(db Querier, schema Schema) *Backend {
	return &Backend{db: db, schema: schema}
}

func (b *Backend) Select(ctx context.Context, q feed.Query) ([]feed.Record, error) {
	sql, args, err := b.buildSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]feed.Record, len(maps))
	for i, m := range maps {
		out[i] = feed.Record(m)
	}
	return out, nil
}

func (b *Backend) Count(ctx context.Context, q feed.CountQuery) (int64, error) {
	sql, args, err := b.buildCount(q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := b.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (b *Backend) CountRelated(ctx context.Context, q feed.RelatedCount) (map[string]int64, error) {
	out := make(map[string]int64, len(q.Keys))
	if len(q.Keys) == 0 {
		return out, nil
	}
	sql, args, err := b.buildCountRelated(q)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func (b *Backend) LookupRelated(ctx context.Context, q feed.RelatedLookup) (map[string]any, error) {
	out := make(map[string]any)
	if len(q.Keys) == 0 {
		return out, nil
	}
	sql, args, err := b.buildLookup(q)
	if err != nil {
		return nil, err
	}
	rows, err := b.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			v   any
		)
		if err := rows.Scan(&key, &v); err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, rows.Err()
}

func (b *Backend) table(name string) (Table, error) {
	t, ok := b.schema[name]
	if !ok {
		return Table{}, fmt.Errorf("pgfeed: unknown table %q", name)
	}
	return t, nil
}

func (t Table) column(field string) (Column, error) {
	c, ok := t.Columns[field]
	if !ok {
		return Column{}, fmt.Errorf("pgfeed: %s: unknown field %q", t.From, field)
	}
	return c, nil
}

// selectList renders every column in name order; uuids come back as text.
func (t Table) selectList() string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = textExpr(t.Columns[name]) + ` AS "` + name + `"`
	}
	return strings.Join(parts, ", ")
}

func textExpr(c Column) string {
	if c.Type == UUID {
		return c.Expr + "::text"
	}
	return c.Expr
}

// query accumulates positional arguments and WHERE clauses.
type query struct {
	args []any
}

func (q *query) bind(v any, t ColumnType) string {
	q.args = append(q.args, v)
	p := "$" + strconv.Itoa(len(q.args))
	switch t {
	case UUID:
		return p + "::uuid"
	case Timestamp:
		return p + "::timestamptz"
	default:
		return p
	}
}

func (q *query) bindArray(keys []string, t ColumnType) string {
	q.args = append(q.args, keys)
	p := "$" + strconv.Itoa(len(q.args))
	if t == UUID {
		return p + "::uuid[]"
	}
	return p + "::text[]"
}

func (b *Backend) conds(q *query, t Table, preds []feed.Predicate) ([]string, error) {
	out := make([]string, 0, len(preds))
	for _, p := range preds {
		col, err := t.column(p.Field)
		if err != nil {
			return nil, err
		}
		switch p.Op {
		case feed.OpEq:
			out = append(out, col.Expr+" = "+q.bind(p.Value, col.Type))
		case feed.OpNe:
			out = append(out, col.Expr+" IS DISTINCT FROM "+q.bind(p.Value, col.Type))
		case feed.OpIsNull:
			out = append(out, col.Expr+" IS NULL")
		case feed.OpNotNull:
			out = append(out, col.Expr+" IS NOT NULL")
		case feed.OpContains:
			s, _ := p.Value.(string)
			out = append(out, col.Expr+" ILIKE "+q.bind("%"+escapeLike(s)+"%", Text))
		case feed.OpIn:
			if p.Set == nil {
				return nil, fmt.Errorf("pgfeed: %s: in predicate without set", p.Field)
			}
			st, err := b.table(p.Set.Table)
			if err != nil {
				return nil, err
			}
			sc, err := st.column(p.Set.Column)
			if err != nil {
				return nil, err
			}
			inner, err := b.conds(q, st, p.Set.Filters)
			if err != nil {
				return nil, err
			}
			out = append(out, col.Expr+" IN (SELECT "+sc.Expr+" FROM "+st.From+where(inner)+")")
		default:
			return nil, fmt.Errorf("pgfeed: %s: unsupported op %s", p.Field, p.Op)
		}
	}
	return out, nil
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func (b *Backend) buildSelect(fq feed.Query) (string, []any, error) {
	t, err := b.table(fq.Table)
	if err != nil {
		return "", nil, err
	}
	key, err := t.column(fq.Order.Key)
	if err != nil {
		return "", nil, err
	}
	id, err := t.column(fq.Order.ID)
	if err != nil {
		return "", nil, err
	}
	q := &query{}
	conds, err := b.conds(q, t, fq.Filters)
	if err != nil {
		return "", nil, err
	}
	if c := fq.After; c != nil {
		conds = append(conds, "("+key.Expr+", "+id.Expr+") < ("+q.bind(c.UpdatedAt, Timestamp)+", "+q.bind(c.ID, id.Type)+")")
	}
	q.args = append(q.args, fq.Limit)
	sql := "SELECT " + t.selectList() + " FROM " + t.From + where(conds) +
		" ORDER BY " + key.Expr + " DESC, " + id.Expr + " DESC LIMIT $" + strconv.Itoa(len(q.args))
	return sql, q.args, nil
}

func (b *Backend) buildCount(cq feed.CountQuery) (string, []any, error) {
	t, err := b.table(cq.Table)
	if err != nil {
		return "", nil, err
	}
	q := &query{}
	conds, err := b.conds(q, t, cq.Filters)
	if err != nil {
		return "", nil, err
	}
	return "SELECT COUNT(*) FROM " + t.From + where(conds), q.args, nil
}

func (b *Backend) buildCountRelated(rc feed.RelatedCount) (string, []any, error) {
	t, err := b.table(rc.Table)
	if err != nil {
		return "", nil, err
	}
	col, err := t.column(rc.Column)
	if err != nil {
		return "", nil, err
	}
	q := &query{}
	conds := []string{col.Expr + " = ANY(" + q.bindArray(rc.Keys, col.Type) + ")"}
	more, err := b.conds(q, t, rc.Where)
	if err != nil {
		return "", nil, err
	}
	conds = append(conds, more...)
	sql := "SELECT " + textExpr(col) + ", COUNT(*) FROM " + t.From + where(conds) + " GROUP BY " + col.Expr
	return sql, q.args, nil
}

func (b *Backend) buildLookup(rl feed.RelatedLookup) (string, []any, error) {
	t, err := b.table(rl.Table)
	if err != nil {
		return "", nil, err
	}
	col, err := t.column(rl.Column)
	if err != nil {
		return "", nil, err
	}
	scope, err := t.column(rl.ScopeColumn)
	if err != nil {
		return "", nil, err
	}
	value := "true"
	if rl.Value != "" {
		vc, err := t.column(rl.Value)
		if err != nil {
			return "", nil, err
		}
		value = textExpr(vc)
	}
	q := &query{}
	conds := []string{
		col.Expr + " = ANY(" + q.bindArray(rl.Keys, col.Type) + ")",
		scope.Expr + " = " + q.bind(rl.Scope, scope.Type),
	}
	sql := "SELECT DISTINCT ON (" + col.Expr + ") " + textExpr(col) + ", " + value + " FROM " + t.From + where(conds) +
		" ORDER BY " + col.Expr
	return sql, q.args, nil
}

package pgfeed

import (
	"strings"
	"testing"
	"time"

	"github.com/example/video-platform/internal/feed"
)

var testSchema = Schema{
	"comments": {
		From: "comments c JOIN users u ON u.id = c.user_id",
		Columns: map[string]Column{
			"id":         {Expr: "c.id", Type: UUID},
			"video_id":   {Expr: "c.video_id", Type: UUID},
			"parent_id":  {Expr: "c.parent_id", Type: UUID},
			"value":      {Expr: "c.value"},
			"updated_at": {Expr: "c.updated_at", Type: Timestamp},
			"user_name":  {Expr: "u.name"},
		},
	},
	"comment_reactions": {
		From: "comment_reactions",
		Columns: map[string]Column{
			"comment_id": {Expr: "comment_id", Type: UUID},
			"user_id":    {Expr: "user_id", Type: UUID},
			"type":       {Expr: "type"},
		},
	},
	"subscriptions": {
		From: "subscriptions",
		Columns: map[string]Column{
			"viewer_id":  {Expr: "viewer_id", Type: UUID},
			"creator_id": {Expr: "creator_id", Type: UUID},
		},
	},
}

func TestBuildSelect_FirstPage(t *testing.T) {
	b := New(nil, testSchema)
	sql, args, err := b.buildSelect(feed.Query{
		Table:   "comments",
		Filters: []feed.Predicate{feed.Eq("video_id", "v"), feed.IsNull("parent_id")},
		Order:   feed.Order{Key: "updated_at", ID: "id"},
		Limit:   21,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := `SELECT c.id::text AS "id", c.parent_id::text AS "parent_id", c.updated_at AS "updated_at", u.name AS "user_name", c.value AS "value", c.video_id::text AS "video_id" ` +
		`FROM comments c JOIN users u ON u.id = c.user_id WHERE c.video_id = $1::uuid AND c.parent_id IS NULL ` +
		`ORDER BY c.updated_at DESC, c.id DESC LIMIT $2`
	if sql != want {
		t.Fatalf("sql mismatch\n got: %s\nwant: %s", sql, want)
	}
	if len(args) != 2 || args[0] != "v" || args[1] != 21 {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestBuildSelect_SeekPredicate(t *testing.T) {
	b := New(nil, testSchema)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sql, args, err := b.buildSelect(feed.Query{
		Table:   "comments",
		Filters: []feed.Predicate{feed.Eq("video_id", "v")},
		Order:   feed.Order{Key: "updated_at", ID: "id"},
		After:   &feed.Cursor{UpdatedAt: at, ID: "c9"},
		Limit:   3,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(sql, "(c.updated_at, c.id) < ($2::timestamptz, $3::uuid)") {
		t.Fatalf("missing seek predicate: %s", sql)
	}
	if !strings.HasSuffix(sql, "LIMIT $4") {
		t.Fatalf("limit not last param: %s", sql)
	}
	if args[1] != at || args[2] != "c9" || args[3] != 3 {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestBuildSelect_UserInputNeverInSQL(t *testing.T) {
	b := New(nil, testSchema)
	hostile := "x'; DROP TABLE comments; --"
	sql, args, err := b.buildSelect(feed.Query{
		Table:   "comments",
		Filters: []feed.Predicate{feed.Contains("value", hostile), feed.Eq("video_id", hostile)},
		Order:   feed.Order{Key: "updated_at", ID: "id"},
		Limit:   2,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.Contains(sql, "DROP") {
		t.Fatalf("input leaked into sql: %s", sql)
	}
	if !strings.Contains(sql, "c.value ILIKE $1") {
		t.Fatalf("missing ilike: %s", sql)
	}
	if args[0] != "%"+hostile+"%" {
		t.Fatalf("unexpected pattern: %#v", args[0])
	}
}

func TestBuildSelect_InSet(t *testing.T) {
	b := New(nil, testSchema)
	sql, args, err := b.buildSelect(feed.Query{
		Table:   "comments",
		Filters: []feed.Predicate{feed.InSet("video_id", "subscriptions", "creator_id", feed.Eq("viewer_id", "me"))},
		Order:   feed.Order{Key: "updated_at", ID: "id"},
		Limit:   5,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(sql, "c.video_id IN (SELECT creator_id FROM subscriptions WHERE viewer_id = $1::uuid)") {
		t.Fatalf("missing subquery: %s", sql)
	}
	if args[0] != "me" {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestBuildSelect_UnknownField(t *testing.T) {
	b := New(nil, testSchema)
	_, _, err := b.buildSelect(feed.Query{
		Table:   "comments",
		Filters: []feed.Predicate{feed.Eq("nope", 1)},
		Order:   feed.Order{Key: "updated_at", ID: "id"},
		Limit:   2,
	})
	if err == nil {
		t.Fatalf("expected error for unknown field")
	}
	if _, _, err := b.buildSelect(feed.Query{Table: "missing"}); err == nil {
		t.Fatalf("expected error for unknown table")
	}
}

func TestBuildCountRelated(t *testing.T) {
	b := New(nil, testSchema)
	sql, args, err := b.buildCountRelated(feed.RelatedCount{
		Table:  "comment_reactions",
		Column: "comment_id",
		Keys:   []string{"a", "b"},
		Where:  []feed.Predicate{feed.Eq("type", "like")},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := "SELECT comment_id::text, COUNT(*) FROM comment_reactions WHERE comment_id = ANY($1::uuid[]) AND type = $2 GROUP BY comment_id"
	if sql != want {
		t.Fatalf("sql mismatch\n got: %s\nwant: %s", sql, want)
	}
	if len(args) != 2 || args[1] != "like" {
		t.Fatalf("unexpected args: %#v", args)
	}
}

func TestBuildLookup(t *testing.T) {
	b := New(nil, testSchema)
	sql, _, err := b.buildLookup(feed.RelatedLookup{
		Table:       "comment_reactions",
		Column:      "comment_id",
		Keys:        []string{"a"},
		ScopeColumn: "user_id",
		Scope:       "viewer",
		Value:       "type",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := "SELECT DISTINCT ON (comment_id) comment_id::text, type FROM comment_reactions WHERE comment_id = ANY($1::uuid[]) AND user_id = $2::uuid ORDER BY comment_id"
	if sql != want {
		t.Fatalf("sql mismatch\n got: %s\nwant: %s", sql, want)
	}

	sql, _, err = b.buildLookup(feed.RelatedLookup{
		Table: "comment_reactions", Column: "comment_id", Keys: []string{"a"}, ScopeColumn: "user_id", Scope: "viewer",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(sql, "comment_id::text, true FROM") {
		t.Fatalf("existence lookup should select true: %s", sql)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("escapeLike: %q", got)
	}
}

package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestConfigurePool(t *testing.T) {
	dsn := "postgres://u:p@localhost:5432/db"
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	configurePool(cfg, dsn)
	if cfg.MaxConns != DefaultMaxConns || cfg.MinConns != 1 {
		t.Fatalf("unexpected sizing: max=%d min=%d", cfg.MaxConns, cfg.MinConns)
	}

	dsn += "?pool_max_conns=4"
	cfg, err = pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	configurePool(cfg, dsn)
	if cfg.MaxConns != 4 {
		t.Fatalf("dsn pool_max_conns ignored: %d", cfg.MaxConns)
	}
}

package db

import (
	"strings"
	"testing"
)

func TestMigrationNamesOrdered(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected embedded migrations, got %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("migrations out of order: %v", names)
		}
	}
	body, err := migrationFiles.ReadFile(names[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "CREATE TABLE") {
		t.Fatalf("first migration has no tables")
	}
}

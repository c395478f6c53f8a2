package migrate

import (
	"io/fs"
	"strings"
	"testing"
)

func TestRun_RejectsBadInput(t *testing.T) {
	if err := Run("", Up); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
	if err := Run("postgres://localhost/x", Direction("sideways")); err == nil {
		t.Fatalf("expected error for bad direction")
	}
}

func TestEmbeddedMigrations_Paired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		t.Fatalf("read embedded: %v", err)
	}
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("expected paired migrations, got up=%d down=%d", ups, downs)
	}
}

func TestWithSearchPath(t *testing.T) {
	got, err := WithSearchPath("postgres://u:p@localhost:5432/game?sslmode=disable", "gs_it_x")
	if err != nil {
		t.Fatalf("WithSearchPath: %v", err)
	}
	if !strings.Contains(got, "search_path=gs_it_x") || !strings.Contains(got, "sslmode=disable") {
		t.Fatalf("unexpected dsn %q", got)
	}
}

package migrate

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"sessiond/cmd/internal/db"
)

func TestParseDirection(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   string
		want Direction
		ok   bool
	}{
		{"up", DirUp, true},
		{"down", DirDown, true},
		{"UP", "", false},
		{"", "", false},
		{"sideways", "", false},
	} {
		got, err := ParseDirection(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("ParseDirection(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestRun_MissingDSN(t *testing.T) {
	t.Parallel()

	if err := Run("  ", DirUp); !errors.Is(err, ErrMissingDSN) {
		t.Fatalf("expected ErrMissingDSN, got %v", err)
	}
	if err := Up(""); !errors.Is(err, ErrMissingDSN) {
		t.Fatalf("expected ErrMissingDSN from Up, got %v", err)
	}
}

func TestDirectionConstantsRoundTrip(t *testing.T) {
	t.Parallel()

	for _, d := range []Direction{DirUp, DirDown} {
		got, err := ParseDirection(string(d))
		if err != nil || got != d {
			t.Fatalf("ParseDirection(%q) = %q, %v", d, got, err)
		}
	}
	if err := Run("postgres://localhost/x", Direction("sideways")); err == nil {
		t.Fatalf("expected error for unknown direction")
	}
}

func TestDriverURL(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct{ in, want string }{
		{"postgres://u:p@db:5432/app?sslmode=disable", "pgx5://u:p@db:5432/app?sslmode=disable"},
		{"postgresql://db/app", "pgx5://db/app"},
		{"pgx5://db/app", "pgx5://db/app"},
	} {
		if got := driverURL(tc.in); got != tc.want {
			t.Fatalf("driverURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(db.MigrationFS, "migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file in migrations: %s", name)
		}
	}
	if len(ups) == 0 {
		t.Fatalf("no migrations embedded")
	}
	for v := range ups {
		if !downs[v] {
			t.Fatalf("migration %s has no down file", v)
		}
	}
	for v := range downs {
		if !ups[v] {
			t.Fatalf("migration %s has no up file", v)
		}
	}
}

package migrations

import (
	"strings"
	"testing"
)

func TestUp_Ordered(t *testing.T) {
	names, err := Up()
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}

	want := []string{
		"000001_identifications.up.sql",
		"000002_user_usage.up.sql",
		"000003_species_daily_stats.up.sql",
	}
	if len(names) != len(want) {
		t.Fatalf("expected %d migrations, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("migration %d = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestUp_Idempotent(t *testing.T) {
	names, err := Up()
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		sql, err := Read(name)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(sql, "CREATE TABLE ") && !strings.Contains(sql, "IF NOT EXISTS") {
			t.Errorf("%s must be safe to re-apply", name)
		}
	}
}

func TestRead_Missing(t *testing.T) {
	if _, err := Read("nope.sql"); err == nil {
		t.Fatal("expected error for a missing migration")
	}
}

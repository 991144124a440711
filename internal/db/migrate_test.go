package db

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestUpVersions(t *testing.T) {
	got := upVersions([]string{
		"002_audit.up.sql",
		"001_init.down.sql",
		"001_init.up.sql",
		"README.md",
		"010_later.up.sql",
	})
	want := []string{"001_init", "002_audit", "010_later"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("upVersions() = %v, want %v", got, want)
	}
}

func TestRepositoryMigrationsAreUsable(t *testing.T) {
	dir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	versions := upVersions(names)
	if len(versions) == 0 {
		t.Fatal("no up migrations found")
	}

	for _, v := range versions {
		if _, err := os.Stat(filepath.Join(dir, v+".down.sql")); err != nil {
			t.Errorf("migration %s has no down file", v)
		}
		sql, err := os.ReadFile(filepath.Join(dir, v+".up.sql"))
		if err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(string(sql)) == "" {
			t.Errorf("migration %s is empty", v)
		}
	}
}

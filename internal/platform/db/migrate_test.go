package db

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
)

func newTestMigrator(t *testing.T, fsys fstest.MapFS) *Migrator {
	t.Helper()
	m, err := NewMigrator(nil, fsys, "billing", "billing", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewMigrator() error: %v", err)
	}
	return m
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"billing/001_core.sql":    {Data: []byte("CREATE TABLE patients (id UUID PRIMARY KEY);")},
		"billing/002_claims.sql":  {Data: []byte("CREATE TABLE claims (id UUID PRIMARY KEY);")},
		"billing/003_lookups.sql": {Data: []byte("CREATE TABLE procedure_codes (code TEXT PRIMARY KEY);")},
	}

	migrations, err := newTestMigrator(t, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_core.sql" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[0].SQL != "CREATE TABLE patients (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migrations[2].Version)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"billing/010_tables.sql": {Data: []byte("SELECT 10;")},
		"billing/002_second.sql": {Data: []byte("SELECT 2;")},
		"billing/001_first.sql":  {Data: []byte("SELECT 1;")},
		"billing/005_middle.sql": {Data: []byte("SELECT 5;")},
	}

	migrations, err := newTestMigrator(t, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	expected := []int{1, 2, 5, 10}
	if len(migrations) != len(expected) {
		t.Fatalf("expected %d migrations, got %d", len(expected), len(migrations))
	}
	for i, v := range expected {
		if migrations[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_InvalidFilename(t *testing.T) {
	fsys := fstest.MapFS{
		"billing/001_valid.sql":      {Data: []byte("SELECT 1;")},
		"billing/readme.sql":         {Data: []byte("-- no version prefix")},
		"billing/notes.txt":          {Data: []byte("not sql")},
		"billing/abc_invalid.sql":    {Data: []byte("-- non-numeric prefix")},
		"billing/002_also_valid.sql": {Data: []byte("SELECT 2;")},
		"clinical/001_other.sql":     {Data: []byte("SELECT 3;")},
	}

	migrations, err := newTestMigrator(t, fsys).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	_, err := newTestMigrator(t, fstest.MapFS{}).LoadMigrations()
	if err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestNewMigrator_RejectsBadSchema(t *testing.T) {
	for _, schema := range []string{"", "Billing", "billing;drop", "1billing"} {
		if _, err := NewMigrator(nil, fstest.MapFS{}, "x", schema, zerolog.Nop()); err == nil {
			t.Errorf("expected error for schema %q", schema)
		}
	}
}

func TestBuildStatus(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "001_core.sql"},
		{Version: 2, Name: "002_claims.sql"},
		{Version: 3, Name: "003_lookups.sql"},
	}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	statuses := buildStatus(migrations, map[int]time.Time{1: at})
	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied || statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(at) {
		t.Errorf("expected migration 001 applied at %v, got %+v", at, statuses[0])
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Error("expected migration 002 to be pending")
	}
	if statuses[2].Applied {
		t.Error("expected migration 003 to be pending")
	}
}

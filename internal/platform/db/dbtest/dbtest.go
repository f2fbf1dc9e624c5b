// Package dbtest runs an embedded PostgreSQL for repository integration
// tests. Tests using it are skipped unless CLAIMSDB_INTEGRATION=1.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/claimsdb/internal/platform/db"
	"github.com/ehr/claimsdb/migrations"
)

const EnvFlag = "CLAIMSDB_INTEGRATION"

const (
	user     = "postgres"
	password = "postgres"
	database = "claimsdb_test"
)

// Enabled reports whether integration tests were requested.
func Enabled() bool { return os.Getenv(EnvFlag) == "1" }

type Server struct {
	pg  *embeddedpostgres.EmbeddedPostgres
	dsn string
}

// Start boots PostgreSQL on port with its data under a temp directory.
// Each test package passes its own port so packages can run in parallel.
func Start(port uint32) (*Server, error) {
	runtime, err := os.MkdirTemp("", "claimsdb-pg-*")
	if err != nil {
		return nil, err
	}
	pg := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Database(database).
			Username(user).
			Password(password).
			Version(embeddedpostgres.V16).
			RuntimePath(filepath.Join(runtime, "runtime")).
			StartTimeout(45 * time.Second),
	)
	if err := pg.Start(); err != nil {
		return nil, fmt.Errorf("start embedded postgres: %w", err)
	}
	return &Server{
		pg:  pg,
		dsn: fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable", user, password, port, database),
	}, nil
}

func (s *Server) Stop() error { return s.pg.Stop() }

// Fresh drops both schemas, re-applies every migration and returns a pool
// closed at the end of the test.
func (s *Server) Fresh(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := db.NewPool(ctx, db.PoolConfig{URL: s.dsn, MaxConns: 8})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	for _, schema := range migrations.Schemas {
		if _, err := pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Fatalf("drop schema %s: %v", schema, err)
		}
		m, err := db.NewMigrator(pool, migrations.FS, schema, schema, zerolog.Nop())
		if err != nil {
			t.Fatalf("migrator: %v", err)
		}
		if _, err := m.Up(ctx); err != nil {
			t.Fatalf("migrate %s: %v", schema, err)
		}
	}
	return pool
}

package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// SchemaVersion is the highest applied migration per schema.
type SchemaVersion struct {
	Schema  string `json:"schema"`
	Version int    `json:"version"`
}

func schemaVersions(ctx context.Context, pool *pgxpool.Pool, schemas []string) ([]SchemaVersion, error) {
	out := make([]SchemaVersion, 0, len(schemas))
	for _, s := range schemas {
		if !schemaPattern.MatchString(s) {
			continue
		}
		var v int
		err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM `+s+`._migrations`).Scan(&v)
		if err != nil {
			return nil, err
		}
		out = append(out, SchemaVersion{Schema: s, Version: v})
	}
	return out, nil
}

// HealthHandler pings the database and reports pool statistics together
// with the migration level of each bounded-context schema.
func HealthHandler(pool *pgxpool.Pool, schemas ...string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := pool.Ping(ctx)
		stats := GetPoolStats(pool)
		if err == nil {
			var versions []SchemaVersion
			versions, err = schemaVersions(ctx, pool, schemas)
			if err == nil {
				return c.JSON(http.StatusOK, map[string]interface{}{
					"status":  "healthy",
					"pool":    stats,
					"schemas": versions,
				})
			}
		}

		stats.Healthy = false
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
			"pool":   stats,
		})
	}
}

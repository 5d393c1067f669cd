package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) PoolStats {
	stat := pool.Stat()
	return PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// probe is what the readiness check needs from the database.
type probe interface {
	Ping(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	Stats() PoolStats
}

type poolProbe struct{ pool *pgxpool.Pool }

func (p poolProbe) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }
func (p poolProbe) Stats() PoolStats               { return GetPoolStats(p.pool) }

// SchemaVersion is the highest applied migration, 0 before the first one.
func (p poolProbe) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

// HealthHandler serves GET /health/db. The database is ready when it answers a
// ping and at least one migration has been applied.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return healthHandler(poolProbe{pool: pool})
}

func healthHandler(p probe) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		body := map[string]interface{}{"pool": p.Stats()}
		unhealthy := func(reason string) error {
			body["status"] = "unhealthy"
			body["error"] = reason
			return c.JSON(http.StatusServiceUnavailable, body)
		}

		if err := p.Ping(ctx); err != nil {
			return unhealthy(err.Error())
		}
		version, err := p.SchemaVersion(ctx)
		if err != nil {
			return unhealthy("schema_migrations unreadable: " + err.Error())
		}
		body["schema_version"] = version
		if version == 0 {
			return unhealthy("no migrations applied")
		}

		body["status"] = "healthy"
		return c.JSON(http.StatusOK, body)
	}
}

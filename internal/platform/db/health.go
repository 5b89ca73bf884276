package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the subset of pgxpool statistics worth exposing.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// HealthReport is the body served by the store health endpoint.
type HealthReport struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Error  string `json:"error,omitempty"`
	// SchemaVersion is the newest applied migration, 0 when none ran.
	SchemaVersion int        `json:"schema_version"`
	Pool          *PoolStats `json:"pool,omitempty"`
}

// Healthy reports whether the store answered.
func (r HealthReport) Healthy() bool { return r.Status == "healthy" }

func statsOf(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}
}

// Check pings the database and reads the applied schema version.
func Check(ctx context.Context, pool *pgxpool.Pool) HealthReport {
	report := HealthReport{Status: "healthy", Store: "postgres", Pool: statsOf(pool)}
	if err := pool.Ping(ctx); err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		return report
	}

	// the tracking table is absent until the first migrate run
	var version int
	err := pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM _migrations`).Scan(&version)
	if err == nil {
		report.SchemaVersion = version
	}
	return report
}

// HealthHandler serves Check as JSON, with 503 when the database is down.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := Check(ctx, pool)
		if !report.Healthy() {
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}

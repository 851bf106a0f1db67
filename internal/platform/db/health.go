package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 3 * time.Second

// PoolStats is the pool snapshot served by /health/db.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	// Saturated is true when every connection is checked out; bookings then
	// queue behind the reminder tick or each other.
	Saturated bool `json:"saturated"`
}

// HealthReport is the /health/db response body.
type HealthReport struct {
	Status    string     `json:"status"`
	LatencyMS int64      `json:"latency_ms"`
	Error     string     `json:"error,omitempty"`
	Pool      *PoolStats `json:"pool,omitempty"`
}

func poolStats(pool *pgxpool.Pool) *PoolStats {
	s := pool.Stat()
	return &PoolStats{
		TotalConns:    s.TotalConns(),
		IdleConns:     s.IdleConns(),
		AcquiredConns: s.AcquiredConns(),
		MaxConns:      s.MaxConns(),
		Saturated:     s.MaxConns() > 0 && s.AcquiredConns() >= s.MaxConns(),
	}
}

// checkHealth times a ping and folds the outcome into a report.
func checkHealth(ctx context.Context, ping func(context.Context) error, stats *PoolStats) (int, HealthReport) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	start := time.Now()
	err := ping(ctx)
	report := HealthReport{
		Status:    "healthy",
		LatencyMS: time.Since(start).Milliseconds(),
		Pool:      stats,
	}
	if err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
		return http.StatusServiceUnavailable, report
	}
	if stats != nil && stats.Saturated {
		report.Status = "degraded"
	}
	return http.StatusOK, report
}

// HealthHandler serves /health/db.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		code, report := checkHealth(c.Request().Context(), pool.Ping, poolStats(pool))
		return c.JSON(code, report)
	}
}

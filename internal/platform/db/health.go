package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

// PoolStats is the pool snapshot reported by the health endpoint.
type PoolStats struct {
	Total        int32  `json:"total"`
	Idle         int32  `json:"idle"`
	Acquired     int32  `json:"acquired"`
	Max          int32  `json:"max"`
	EmptyAcquire int64  `json:"empty_acquire"`
	AcquireWait  string `json:"acquire_wait"`
}

func Stats(pool *pgxpool.Pool) PoolStats {
	s := pool.Stat()
	return PoolStats{
		Total:        s.TotalConns(),
		Idle:         s.IdleConns(),
		Acquired:     s.AcquiredConns(),
		Max:          s.MaxConns(),
		EmptyAcquire: s.EmptyAcquireCount(),
		AcquireWait:  s.AcquireDuration().String(),
	}
}

// HealthHandler answers {ok, database, latency_ms, pool}: 200 when a ping
// succeeds, 503 otherwise. Mount it outside SessionMiddleware so it still
// answers when every connection is checked out.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		start := time.Now()
		err := pool.Ping(ctx)
		body := map[string]any{
			"ok":         err == nil,
			"database":   "up",
			"latency_ms": time.Since(start).Milliseconds(),
			"pool":       Stats(pool),
		}
		if err != nil {
			body["database"] = "down"
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}

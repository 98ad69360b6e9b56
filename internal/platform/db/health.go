package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Check pings one dependency for the readiness endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// PoolCheck returns a readiness check for the database pool.
func PoolCheck(pool *pgxpool.Pool) Check {
	return Check{Name: "database", Ping: pool.Ping}
}

// LivenessHandler reports that the process is serving requests.
func LivenessHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyHandler pings every dependency and answers 503 when any fails.
// Failure causes stay in the server log.
func ReadyHandler(logger zerolog.Logger, checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		status := http.StatusOK
		for _, chk := range checks {
			if err := chk.Ping(ctx); err != nil {
				results[chk.Name] = "unavailable"
				status = http.StatusServiceUnavailable
				logger.Warn().Err(err).Str("check", chk.Name).Msg("readiness check failed")
				continue
			}
			results[chk.Name] = "ok"
		}

		state := "ready"
		if status != http.StatusOK {
			state = "not_ready"
		}
		return c.JSON(status, map[string]any{"status": state, "checks": results})
	}
}

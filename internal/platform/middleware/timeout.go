package middleware

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout bounds each request with a context deadline. The handler
// runs on the request goroutine; stores and providers observe the deadline
// and fail with context.DeadlineExceeded, which renders as 503.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))
			err := next(c)
			if err == nil && ctx.Err() == context.DeadlineExceeded && !c.Response().Committed {
				return context.DeadlineExceeded
			}
			return err
		}
	}
}

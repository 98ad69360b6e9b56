package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// maxHeaderValueSize is the maximum allowed size for any single header value.
const maxHeaderValueSize = 8192

var scriptPatterns = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)

// Sanitize rejects requests carrying path traversal, null bytes, header
// injection or script payloads in query parameters with 400.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			raw := req.URL.RawPath
			if raw == "" {
				raw = req.URL.Path
			}

			reason := ""
			switch {
			case containsPathTraversal(req.URL.Path) || containsPathTraversal(raw):
				reason = "path traversal"
			case containsNullByte(req.URL.Path) || containsNullByte(raw):
				reason = "null byte in path"
			default:
				reason = inspectHeaders(req.Header)
				if reason == "" {
					reason = inspectQuery(req)
				}
			}
			if reason != "" {
				logger.Warn().
					Str("reason", reason).
					Str("path", req.URL.Path).
					Str("remote_ip", c.RealIP()).
					Msg("request rejected by sanitizer")
				return echo.NewHTTPError(http.StatusBadRequest, "malformed request")
			}
			return next(c)
		}
	}
}

func inspectHeaders(h http.Header) string {
	for _, values := range h {
		for _, v := range values {
			if len(v) > maxHeaderValueSize {
				return "oversized header"
			}
			if strings.ContainsAny(v, "\r\n") {
				return "header injection"
			}
		}
	}
	return ""
}

func inspectQuery(req *http.Request) string {
	for key, values := range req.URL.Query() {
		if containsNullByte(key) || scriptPatterns.MatchString(key) {
			return "unsafe query key"
		}
		for _, v := range values {
			if containsNullByte(v) || scriptPatterns.MatchString(v) {
				return "unsafe query value"
			}
		}
	}
	return ""
}

func containsPathTraversal(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(s, "..") || strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

func containsNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}

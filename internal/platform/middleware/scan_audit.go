package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/retinacare/retina/internal/platform/apperr"
)

// ScanAccess is one audited access to scan records.
type ScanAccess struct {
	RequestID string
	UserID    string
	UserRole  string
	Action    string
	ScanID    string
	PatientID string
	Method    string
	Path      string
	Status    int
	RemoteIP  string
	Timestamp time.Time
}

// ScanAuditRecorder receives audit entries in addition to the log line.
type ScanAuditRecorder interface {
	RecordScanAccess(entry ScanAccess) error
}

type ScanAuditRecorderFunc func(entry ScanAccess) error

func (f ScanAuditRecorderFunc) RecordScanAccess(entry ScanAccess) error {
	return f(entry)
}

// ScanAudit logs every request that touches scan records with
// type=scan_access, including denied ones. It must run outside the
// authorization guard so that rejected requests are recorded too.
func ScanAudit(logger zerolog.Logger, recorders ...ScanAuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isScanPath(req.URL.Path) {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if err != nil {
				status, _ = apperr.Render(err)
			}
			entry := ScanAccess{
				Action:    scanAction(req.Method, req.URL.Path),
				ScanID:    c.Param("id"),
				PatientID: c.Param("patientId"),
				Method:    req.Method,
				Path:      req.URL.Path,
				Status:    status,
				RemoteIP:  c.RealIP(),
				Timestamp: time.Now().UTC(),
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			entry.UserID, _ = c.Get("user_id").(string)
			entry.UserRole, _ = c.Get("user_role").(string)

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordScanAccess(entry); recErr != nil {
					logger.Error().Err(recErr).Str("request_id", entry.RequestID).Msg("failed to record scan access")
				}
			}

			evt := logger.Info()
			if status == http.StatusForbidden || status == http.StatusNotFound {
				evt = logger.Warn()
			}
			evt.
				Str("type", "scan_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("user_role", entry.UserRole).
				Str("action", entry.Action).
				Str("scan_id", entry.ScanID).
				Str("patient_id", entry.PatientID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Int("status", entry.Status).
				Str("remote_ip", entry.RemoteIP).
				Msg("scan_access")

			return err
		}
	}
}

// isScanPath matches /api/scans[/...] and /api/patients/<id>/scans.
func isScanPath(path string) bool {
	if path == "/api/scans" || strings.HasPrefix(path, "/api/scans/") {
		return true
	}
	if rest, ok := strings.CutPrefix(path, "/api/patients/"); ok {
		return strings.HasSuffix(rest, "/scans")
	}
	return false
}

func scanAction(method, path string) string {
	switch {
	case method == http.MethodPost && strings.HasSuffix(path, "/analyze"):
		return "upload"
	case method == http.MethodPost:
		return "create"
	case strings.Contains(path, "/image/"):
		return "view_image"
	case strings.HasSuffix(path, "/scans") || strings.HasSuffix(path, "/recent"):
		return "list"
	}
	return "read"
}

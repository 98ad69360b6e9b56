package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/retinacare/retina/internal/platform/apperr"
)

func TestScanAudit_RecordsAccess(t *testing.T) {
	var buf bytes.Buffer
	var got []ScanAccess
	rec := ScanAuditRecorderFunc(func(entry ScanAccess) error {
		got = append(got, entry)
		return nil
	})

	e := echo.New()
	e.Use(RequestID(), ScanAudit(zerolog.New(&buf), rec))
	e.GET("/api/scans/:id", func(c echo.Context) error {
		c.Set("user_id", "D2")
		c.Set("user_role", "doctor")
		return apperr.NotFound("scan not found")
	})
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/scans/42", nil))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if len(got) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(got))
	}
	entry := got[0]
	if entry.ScanID != "42" || entry.UserID != "D2" || entry.Status != http.StatusNotFound || entry.Action != "read" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if entry.RequestID == "" {
		t.Error("request id missing")
	}
	if !strings.Contains(buf.String(), `"type":"scan_access"`) {
		t.Errorf("expected scan_access log line, got %s", buf.String())
	}
}

func TestIsScanPath(t *testing.T) {
	tests := map[string]bool{
		"/api/scans":             true,
		"/api/scans/recent":      true,
		"/api/scans/1/image/raw": true,
		"/api/patients/P1/scans": true,
		"/api/patients/P1":       false,
		"/api/patient/doctor":    false,
		"/api/scansx":            false,
		"/health":                false,
	}
	for path, want := range tests {
		if got := isScanPath(path); got != want {
			t.Errorf("isScanPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestScanAction(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodPost, "/api/scans/analyze", "upload"},
		{http.MethodPost, "/api/scans", "create"},
		{http.MethodGet, "/api/scans/3/image/heatmap", "view_image"},
		{http.MethodGet, "/api/scans", "list"},
		{http.MethodGet, "/api/scans/recent", "list"},
		{http.MethodGet, "/api/patients/P1/scans", "list"},
		{http.MethodGet, "/api/scans/3", "read"},
	}
	for _, tt := range tests {
		if got := scanAction(tt.method, tt.path); got != tt.want {
			t.Errorf("scanAction(%s %s) = %s, want %s", tt.method, tt.path, got, tt.want)
		}
	}
}

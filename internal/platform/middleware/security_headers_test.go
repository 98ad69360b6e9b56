package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

var wantSecurityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "0",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Referrer-Policy":           "no-referrer",
	"Cache-Control":             "no-store",
}

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		handler echo.HandlerFunc
		wantErr bool
	}{
		{
			name:   "scan listing",
			method: http.MethodGet,
			path:   "/api/scans",
			handler: func(c echo.Context) error {
				return c.JSON(http.StatusOK, map[string]any{"data": []any{}})
			},
		},
		{
			name:   "doctor selection",
			method: http.MethodPost,
			path:   "/api/patient/doctor",
			handler: func(c echo.Context) error {
				return c.NoContent(http.StatusCreated)
			},
		},
		{
			name:   "handler error",
			method: http.MethodGet,
			path:   "/api/scans/9",
			handler: func(c echo.Context) error {
				return errors.New("boom")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := echo.New().NewContext(httptest.NewRequest(tt.method, tt.path, nil), rec)

			err := SecurityHeaders()(tt.handler)(c)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			for header, want := range wantSecurityHeaders {
				if got := rec.Header().Get(header); got != want {
					t.Errorf("%s = %q, want %q", header, got, want)
				}
			}
		})
	}
}

func TestSecurityHeaders_HandlerMayOverrideCaching(t *testing.T) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/api/scans/1/image", nil), rec)

	err := SecurityHeaders()(func(c echo.Context) error {
		c.Response().Header().Set("Cache-Control", "private, no-store")
		return c.Blob(http.StatusOK, "image/png", []byte{0x89, 'P', 'N', 'G'})
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Cache-Control"); got != "private, no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

package db

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestReadyHandler(t *testing.T) {
	ok := Check{Name: "database", Ping: func(context.Context) error { return nil }}
	down := Check{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }}

	tests := []struct {
		name       string
		checks     []Check
		wantStatus int
		wantState  string
	}{
		{"no checks", nil, http.StatusOK, "ready"},
		{"all healthy", []Check{ok}, http.StatusOK, "ready"},
		{"one failing", []Check{ok, down}, http.StatusServiceUnavailable, "not_ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ready", nil), rec)

			if err := ReadyHandler(zerolog.Nop(), tt.checks...)(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}

			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.wantState {
				t.Errorf("expected %s, got %s", tt.wantState, body.Status)
			}
			for _, chk := range tt.checks {
				if _, ok := body.Checks[chk.Name]; !ok {
					t.Errorf("missing check %s in body", chk.Name)
				}
			}
		})
	}
}

func TestLivenessHandler(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)

	if err := LivenessHandler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

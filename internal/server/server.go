// Package server assembles the HTTP API from the domain packages.
package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/retinacare/retina/internal/authz"
	"github.com/retinacare/retina/internal/domain/account"
	"github.com/retinacare/retina/internal/domain/approval"
	"github.com/retinacare/retina/internal/domain/assignment"
	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/domain/scan"
	"github.com/retinacare/retina/internal/platform/apperr"
	"github.com/retinacare/retina/internal/platform/auth"
	"github.com/retinacare/retina/internal/platform/blobstore"
	"github.com/retinacare/retina/internal/platform/db"
	"github.com/retinacare/retina/internal/platform/events"
	"github.com/retinacare/retina/internal/platform/middleware"
)

// Options tunes the HTTP platform. Zero values fall back to defaults.
type Options struct {
	CORSOrigins    []string
	RateLimit      middleware.RateLimitConfig
	RequestTimeout time.Duration
	UploadMaxBytes int64
}

// Deps are the stores and adapters the API runs on. Provider should already
// be wrapped with revocation checks when Revocations is set.
type Deps struct {
	Logger      zerolog.Logger
	Options     Options
	Profiles    profile.Repository
	Assignments assignment.Repository
	Scans       scan.Repository
	Blobs       blobstore.Store
	Analyzer    scan.Analyzer
	Provider    auth.Provider
	Revocations auth.RevocationStore
	Events      events.Publisher
	ReadyChecks []db.Check
	Recorders   []middleware.ScanAuditRecorder
}

// New builds the echo instance with every route mounted under /api.
func New(d Deps) *echo.Echo {
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	opts := d.Options
	if opts.RateLimit.RequestsPerSecond <= 0 {
		opts.RateLimit = middleware.DefaultRateLimitConfig()
	}
	if opts.UploadMaxBytes <= 0 {
		opts.UploadMaxBytes = blobstore.DefaultMaxSize
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(d.Logger)

	e.Pre(middleware.Sanitize(d.Logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.Logger))
	e.Use(middleware.Recovery(d.Logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: opts.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.RateLimit(opts.RateLimit))
	e.Use(middleware.RequestTimeout(opts.RequestTimeout))
	e.Use(middleware.ScanAudit(d.Logger, d.Recorders...))

	e.GET("/health", db.LivenessHandler())
	e.GET("/ready", db.ReadyHandler(d.Logger, d.ReadyChecks...))

	profiles := profile.NewService(d.Profiles, d.Events)
	registry := assignment.NewRegistry(d.Assignments, d.Profiles, d.Events)
	reviews := approval.NewService(d.Profiles, d.Events)
	scans := scan.NewService(d.Scans, registry, d.Profiles, d.Blobs, d.Analyzer, d.Events)

	guard := authz.NewGuard(authz.NewResolver(d.Provider, d.Profiles))

	api := e.Group("/api")
	account.NewHandler(profiles, d.Revocations).RegisterRoutes(api, guard)
	approval.NewHandler(reviews).RegisterRoutes(api, guard)
	assignment.NewHandler(registry).RegisterRoutes(api, guard)
	scan.NewHandler(scans).RegisterRoutes(api, guard, middleware.BodyLimit(opts.UploadMaxBytes))

	return e
}

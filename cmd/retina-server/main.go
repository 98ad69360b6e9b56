package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/retinacare/retina/internal/config"
	"github.com/retinacare/retina/internal/domain/assignment"
	"github.com/retinacare/retina/internal/domain/profile"
	"github.com/retinacare/retina/internal/domain/scan"
	"github.com/retinacare/retina/internal/platform/auth"
	"github.com/retinacare/retina/internal/platform/blobstore"
	"github.com/retinacare/retina/internal/platform/db"
	"github.com/retinacare/retina/internal/platform/events"
	"github.com/retinacare/retina/internal/platform/middleware"
	"github.com/retinacare/retina/internal/platform/redisclient"
	"github.com/retinacare/retina/internal/platform/sandbox"
	"github.com/retinacare/retina/internal/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "retina-server",
		Short:        "Retinal scan review API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrationsDir(cmd, cfg)).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrationsDir(cmd, cfg)).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationsDir(cmd *cobra.Command, cfg *config.Config) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	return cfg.MigrationsDir
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// adminCmd provisions administrators. There is no HTTP path to the admin
// role.
func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator profile for an identity-provider subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stderr)
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := profile.NewService(profile.NewRepo(pool), events.LogPublisher{Logger: logger})
			p, err := svc.CreateAdmin(ctx, id, email, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s <%s>\n", p.ID, p.Email)
			return nil
		},
	}
	createCmd.Flags().String("id", "", "Identity-provider subject of the admin")
	createCmd.Flags().String("email", "", "Admin email")
	createCmd.Flags().String("name", "", "Admin display name")
	_ = createCmd.MarkFlagRequired("id")
	_ = createCmd.MarkFlagRequired("email")
	_ = createCmd.MarkFlagRequired("name")

	cmd.AddCommand(createCmd)
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Development credentials",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Print an HS256 bearer token signed with AUTH_SIGNING_KEY (development only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := issueDevToken(cfg, subject, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issueCmd.Flags().String("subject", "", "Subject (profile id) of the token")
	issueCmd.Flags().String("email", "", "Email claim")
	issueCmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	_ = issueCmd.MarkFlagRequired("subject")

	cmd.AddCommand(issueCmd)
	return cmd
}

func issueDevToken(cfg *config.Config, subject, email string, ttl time.Duration) (string, error) {
	if !cfg.IsDev() {
		return "", errors.New("token issue is only available in development")
	}
	if cfg.AuthMode != config.AuthModeJWT || cfg.AuthSigningKey == "" {
		return "", errors.New("token issue needs AUTH_MODE=jwt and AUTH_SIGNING_KEY")
	}
	issuer := auth.Issuer{
		Key:      []byte(cfg.AuthSigningKey),
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		TTL:      ttl,
	}
	return issuer.Issue(subject, email)
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with synthetic doctors, patients and scans",
		RunE: func(cmd *cobra.Command, args []string) error {
			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.DoctorCount, _ = cmd.Flags().GetInt("doctors")
			seedCfg.PendingDoctorCount, _ = cmd.Flags().GetInt("pending")
			seedCfg.PatientCount, _ = cmd.Flags().GetInt("patients")
			seedCfg.ScansPerPatient, _ = cmd.Flags().GetInt("scans")
			seedCfg.Seed, _ = cmd.Flags().GetUint64("seed")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			stores := sandbox.Stores{
				Profiles:    profile.NewRepo(pool),
				Assignments: assignment.NewRepo(pool),
				Scans:       scan.NewRepo(pool),
			}
			var res *sandbox.SeedResult
			err = db.WithTx(ctx, pool, func(ctx context.Context) error {
				var runErr error
				res, runErr = sandbox.NewSeeder(seedCfg, stores).Run(ctx)
				return runErr
			})
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d doctors (%d pending), %d patients, %d scans in %s\n",
				res.Doctors+res.PendingDoctors, res.PendingDoctors, res.Patients, res.Scans, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	defaults := sandbox.DefaultSeedConfig()
	cmd.Flags().Int("doctors", defaults.DoctorCount, "Approved doctors to create")
	cmd.Flags().Int("pending", defaults.PendingDoctorCount, "Pending doctors to create")
	cmd.Flags().Int("patients", defaults.PatientCount, "Patients to create")
	cmd.Flags().Int("scans", defaults.ScansPerPatient, "Scans per patient")
	cmd.Flags().Uint64("seed", 0, "Random seed (0 picks one)")
	return cmd
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

// app is the wired dependency graph plus whatever must be closed on
// shutdown, in reverse order of creation.
type app struct {
	deps    server.Deps
	closers []func()
}

func (r *app) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func buildRuntime(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	rt := &app{}
	d := &rt.deps
	d.Logger = logger
	d.Options = server.Options{
		CORSOrigins: cfg.CORSOrigins,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			IdleTTL:           10 * time.Minute,
		},
		RequestTimeout: cfg.RequestTimeout,
		UploadMaxBytes: cfg.UploadMaxBytes,
	}

	if cfg.UsesMemoryStore() {
		logger.Warn().Msg("DATABASE_URL not set; using in-memory stores")
		profiles := profile.NewMemoryRepo()
		d.Profiles = profiles
		d.Assignments = assignment.NewMemoryRepo(profiles)
		d.Scans = scan.NewMemoryRepo()
	} else {
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		d.Profiles = profile.NewRepo(pool)
		d.Assignments = assignment.NewRepo(pool)
		d.Scans = scan.NewRepo(pool)
		d.ReadyChecks = append(d.ReadyChecks, db.PoolCheck(pool))
	}

	if cfg.RedisURL != "" {
		rdb, err := redisclient.New(ctx, cfg.RedisURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = rdb.Close() })
		d.Revocations = auth.NewRedisRevocationStore(rdb)
		d.ReadyChecks = append(d.ReadyChecks, db.Check{Name: "redis", Ping: redisclient.Ping(rdb)})
	} else {
		store := auth.NewMemoryRevocationStore(5 * time.Minute)
		rt.closers = append(rt.closers, store.Close)
		d.Revocations = store
	}

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	d.Provider = auth.RevocationChecker{Provider: provider, Store: d.Revocations}

	if len(cfg.KafkaBrokers) > 0 {
		pub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		rt.closers = append(rt.closers, func() { _ = pub.Close() })
		d.Events = pub
	} else {
		d.Events = events.LogPublisher{Logger: logger}
	}

	if cfg.BlobDir != "" {
		store, err := blobstore.NewFSStore(cfg.BlobDir, cfg.UploadMaxBytes)
		if err != nil {
			rt.Close()
			return nil, err
		}
		d.Blobs = store
	} else {
		d.Blobs = blobstore.NewMemoryStore(cfg.UploadMaxBytes)
	}
	d.Analyzer = scan.NewStubAnalyzer(nil)

	return rt, nil
}

func buildProvider(ctx context.Context, cfg *config.Config) (auth.Provider, error) {
	switch cfg.AuthMode {
	case config.AuthModeUserInfo:
		return auth.NewUserInfoProvider(cfg.AuthUserInfoURL, cfg.AuthAPIKey), nil
	case config.AuthModeJWT:
		return auth.NewJWTProvider(ctx, auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	default:
		return nil, fmt.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	rt, err := buildRuntime(context.Background(), cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise dependencies")
		return err
	}
	defer rt.Close()

	e := server.New(rt.deps)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Str("auth_mode", cfg.AuthMode).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

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
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/config"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/domain/encounter"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/ingest"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/platform/auth"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/platform/cache"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/platform/db"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/platform/middleware"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/platform/openapi"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/internal/platform/telemetry"
	"github.com/kasra321/MIMIC-IV-ED-DEMO-DASHBOARD/migrations"
)

const (
	serviceName     = "MIMIC IV ED Dashboard API"
	version         = "0.1.0"
	exportPath      = "/api/encounters/export"
	cacheKeyPrefix  = "ed-dashboard:"
	shutdownTimeout = 10 * time.Second
	serverAppName   = "ed-server"
	cliAppName      = "ed-server-cli"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ed-server",
		Short:        "MIMIC-IV-ED encounter dashboard API",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(ingestCmd())
	return root
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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if err := db.EnsureSchema(ctx, pool, cfg.DBSchema); err != nil {
					return err
				}
				migrator := db.NewMigrator(pool, migrations.FS)
				count, err := migrator.Up(ctx, cfg.DBSchema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to schema %s.\n", count, cfg.DBSchema)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if err := db.EnsureSchema(ctx, pool, cfg.DBSchema); err != nil {
					return err
				}
				statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx, cfg.DBSchema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), cfg.DBSchema, statuses)
				return nil
			})
		},
	})

	return cmd
}

// printStatus writes one row per migration file. A modified row means the
// file was edited after it ran; migrate up refuses to continue until the
// file is restored.
func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "schema %s: %d migration file(s)\n", schema, len(statuses))
	fmt.Fprintf(w, "%-4s %-32s %-9s %s\n", "VER", "NAME", "STATE", "APPLIED AT (UTC)")
	pending := 0
	for _, s := range statuses {
		state, appliedAt := "pending", "-"
		switch {
		case s.Modified:
			state = "modified"
		case s.Applied:
			state = "applied"
		default:
			pending++
		}
		if s.AppliedAt != nil {
			appliedAt = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%03d  %-32s %-9s %s\n", s.Version, s.Name, state, appliedAt)
	}
	if pending > 0 {
		fmt.Fprintf(w, "%d pending; run `ed-server migrate up`\n", pending)
	}
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Replace the ED tables with the csv.gz export in --dir",
		Long: "Truncates edstays, triage, vitalsigns, diagnoses, medrecon and pyxis and " +
			"reloads them in a single transaction. Do not run against a database that is serving traffic.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				dir, _ := cmd.Flags().GetString("dir")
				if dir == "" {
					dir = cfg.DataDir
				}
				loader := ingest.NewLoader(pool, newLogger(cfg))
				counts, err := loader.Load(ctx, dir)
				if err != nil {
					return err
				}
				for _, t := range ingest.Tables {
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d\n", t.Name, counts[t.Name])
				}
				return nil
			})
		},
	}
	cmd.Flags().String("dir", "", "Directory holding the csv.gz files (defaults to DATA_DIR)")
	return cmd
}

// withPool loads config and opens a pool for one-shot commands.
func withPool(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   cfg.DBSchema,
		AppName:  cliAppName,
	})
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	level, err := cfg.Level()
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (cache.Store, error) {
	if cfg.RedisURL == "" {
		store := cache.NewMemoryStore()
		store.StartCleanup(ctx, time.Minute)
		logger.Info().Msg("using in-memory response cache")
		return store, nil
	}
	store, err := cache.NewRedisStore(ctx, cfg.RedisURL, cacheKeyPrefix)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("using redis response cache")
	return store, nil
}

// serverDeps are the pieces newServer wires together. DBHealth is split out
// so tests can build a server without Postgres.
type serverDeps struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Service  *encounter.Service
	Store    cache.Store
	DBHealth echo.HandlerFunc
	Metrics  *telemetry.Metrics
}

func newServer(d serverDeps) *echo.Echo {
	cfg, logger := d.Config, d.Logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if d.Metrics != nil {
		e.Use(d.Metrics.Middleware())
	}
	e.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{
		HSTS:         cfg.TLSEnabled,
		CacheControl: "no-store",
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader, "If-None-Match"},
		ExposeHeaders:    []string{echo.HeaderContentDisposition, middleware.RequestIDHeader, "ETag", "X-Cache", "X-Export-Rows", "X-Export-Truncated"},
		AllowCredentials: true,
	}))
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthJWTSecret),
		Skipper:    auth.AuthSkipper,
	}
	if jwtCfg.Enabled() {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"message": serviceName,
			"docs":    openapi.DocsPath,
		})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"version": version,
		})
	})
	if d.DBHealth != nil {
		e.GET("/health/db", d.DBHealth)
	}
	if d.Metrics != nil {
		e.GET(telemetry.MetricsPath, d.Metrics.Handler())
	}

	cacheCfg := middleware.DefaultCacheConfig()
	cacheCfg.ExcludePaths = []string{exportPath}

	api := e.Group("/api")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))
	api.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	api.Use(middleware.ETag(cacheCfg))
	if d.Store != nil && cfg.CacheTTL > 0 {
		api.Use(middleware.ResponseCache(d.Store, cfg.CacheTTL, cacheCfg, logger))
	}

	h := encounter.NewHandler(d.Service, logger)
	h.RegisterRoutes(api)

	docs := openapi.NewGenerator(serviceName, version, "")
	h.Describe(docs, "/api")
	docs.RegisterRoutes(e.Group(""), "")
	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg)
	if !cfg.AuthEnabled() {
		logger.Warn().Msg("AUTH_JWT_SECRET is not set; /api routes are unauthenticated")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   cfg.DBSchema,
		ReadOnly: true,
		AppName:  serverAppName,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open response cache: %w", err)
	}
	defer store.Close()

	svc := encounter.NewService(encounter.NewRepo(pool), logger)
	svc.SetExportMaxRows(cfg.ExportMaxRows)

	metrics := telemetry.NewMetrics()
	metrics.SetPoolStats(func() (int32, int32, int32) {
		st := pool.Stat()
		return st.AcquiredConns(), st.IdleConns(), st.TotalConns()
	})

	e := newServer(serverDeps{
		Config:   cfg,
		Logger:   logger,
		Service:  svc,
		Store:    store,
		DBHealth: db.HealthHandler(pool, cfg.DBSchema),
		Metrics:  metrics,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

package main

import (
	"context"
	"errors"
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

	"github.com/ehr/claimsdb/internal/catalog"
	"github.com/ehr/claimsdb/internal/config"
	"github.com/ehr/claimsdb/internal/domain/billing"
	"github.com/ehr/claimsdb/internal/domain/clinical"
	"github.com/ehr/claimsdb/internal/platform/auth"
	"github.com/ehr/claimsdb/internal/platform/cache"
	"github.com/ehr/claimsdb/internal/platform/db"
	"github.com/ehr/claimsdb/internal/platform/middleware"
	"github.com/ehr/claimsdb/migrations"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

type services struct {
	billing  *billing.Service
	clinical *clinical.Service
}

func newServices(cfg *config.Config, pool *pgxpool.Pool, c *cache.Cache, log zerolog.Logger) services {
	tx := db.NewTransactor(pool)

	lookups := billing.NewLookupRepoPG(pool)
	billingSvc := billing.NewService(billing.Repositories{
		Patients:  billing.NewPatientRepoPG(pool),
		Providers: billing.NewProviderRepoPG(pool),
		Payers:    billing.NewPayerRepoPG(pool),
		Claims:    billing.NewClaimRepoPG(pool),
		Lines:     billing.NewClaimLineRepoPG(pool),
		Payments:  billing.NewPaymentRepoPG(pool),
		Lookups:   lookups,
	}, billing.NewVocabulary(lookups, c, cfg.VocabCacheTTL, log), tx, log)
	billingSvc.SetPaymentCap(cfg.EnforcePaymentCap)

	clinicalSvc := clinical.NewService(clinical.Repositories{
		Patients:   clinical.NewPatientRepoPG(pool),
		Admissions: clinical.NewAdmissionRepoPG(pool),
		Markers:    clinical.NewMarkerRepoPG(pool),
		Cases:      clinical.NewCaseDescriptorRepoPG(pool),
	}, tx, log)

	return services{billing: billingSvc, clinical: clinicalSvc}
}

func authConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: cfg.SigningKey(),
		Skipper:    auth.AuthSkipper,
	}
}

// newServer builds the echo instance with every route mounted. It does not
// touch the database until a request needs it.
func newServer(cfg *config.Config, pool *pgxpool.Pool, svcs services, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.BodyLimit("2M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(authConfig(cfg)))
	} else {
		e.Use(auth.JWTMiddleware(authConfig(cfg)))
	}
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, migrations.Schemas...))

	api := e.Group("/api/v1")
	catalog.RegisterRoutes(api)
	billing.NewHandler(svcs.billing).RegisterRoutes(api)
	clinical.NewHandler(svcs.clinical).RegisterRoutes(api)

	return e
}

func runServer(ctx context.Context) error {
	app, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	logger := app.log

	if err := app.cfg.Validate(); err != nil {
		return err
	}
	logger.Info().Msg("connected to database")

	vocabCache, err := cache.New(ctx, app.cfg.RedisURL, "claimsdb")
	if err != nil {
		return err
	}
	defer vocabCache.Close()
	if vocabCache.Enabled() {
		logger.Info().Msg("vocabulary cache shared through redis")
	}

	e := newServer(app.cfg, app.pool, newServices(app.cfg, app.pool, vocabCache, logger), logger)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + app.cfg.Port
		logger.Info().Str("addr", addr).Str("env", app.cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// Package server initializes and runs the session API process: the REST API,
// the gRPC health endpoint, and their shared dependencies.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/logging"
	"github.com/dmitrijs2005/tmssession/internal/server/artifacts"
	"github.com/dmitrijs2005/tmssession/internal/server/audit"
	"github.com/dmitrijs2005/tmssession/internal/server/config"
	"github.com/dmitrijs2005/tmssession/internal/server/httpapi"
	"github.com/dmitrijs2005/tmssession/internal/server/metrics"
	"github.com/dmitrijs2005/tmssession/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tmssession/internal/server/services"
	"github.com/dmitrijs2005/tmssession/internal/telemetry"

	gs "github.com/dmitrijs2005/tmssession/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	audit   *audit.Recorder
	handler http.Handler

	shutdownTracing func(context.Context) error
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel)

	shutdownTracing, err := telemetry.Setup(ctx, "tms-session-api", c.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing init error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	m := metrics.New()

	storeCfg := artifacts.Config{
		AccessKey:    c.S3RootUser,
		SecretKey:    c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		Endpoint:     c.S3BaseEndpoint,
		UsePathStyle: c.S3BaseEndpoint != "",
	}
	if err := storeCfg.Validate(); err != nil {
		logger.Warn(ctx, "bundle storage is not configured, signed url requests will fail", "error", err)
	}
	store := artifacts.NewS3Store(storeCfg)

	var pub audit.Publisher
	if c.AMQPURL != "" {
		p, err := audit.NewAMQPPublisher(c.AMQPURL)
		if err != nil {
			logger.Warn(ctx, "audit broker unavailable, audit entries will only be logged", "error", err)
		} else {
			pub = p
		}
	}
	recorder := audit.NewRecorder(pub, c.AuditExchange, 0, logger, m)

	handler := httpapi.New(httpapi.Dependencies{
		Sessions: services.NewSessionService(db, rm, logger, m),
		Bundles:  services.NewBundleService(db, rm, store, c.SignedURLTTL, logger, m),
		Shared: services.NewSharedSessionService(db, rm, services.SharedConfig{
			DomainLabel:   c.SharedDomainLabel,
			DomainBaseURL: c.SharedDomainBaseURL,
		}, logger, m),
		Domains:   services.NewDomainService(db, rm, logger),
		Audit:     recorder,
		JWTSecret: []byte(c.SecretKey),
		Ready:     db.PingContext,
		Log:       logger,
		Metrics:   m,
	})

	return &App{
		config:          c,
		logger:          logger,
		db:              db,
		audit:           recorder,
		handler:         handler,
		shutdownTracing: shutdownTracing,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.HTTPAddr,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewHealthServer(app.config.GRPCHealthAddr, app.db.PingContext, app.config.HealthProbeInterval, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a termination signal arrives or a server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.GRPCHealthAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()
	app.close()
}

func (app *App) close() {
	app.audit.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.shutdownTracing(ctx); err != nil {
		app.logger.Warn(ctx, "tracing shutdown failed", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close failed", "error", err)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/boltdb/bolt"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger      *zap.Logger
	config      *Config
	server      *http.Server
	redisClient *redis.Client
	boltClient  *bolt.DB
	cleanups    []func()
	workers     []func(context.Context) error
}

// NewApp provides an instance of App.
func NewApp() (AppProvider, error) {
	var app *App
	config, err := LoadAndInitConfigs(GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %s", err)
	}

	// Setup the logging module on top of the rotating files writer.
	clock := NewClock(config.IsProduction)
	writer, err := NewRotatingWriter(config, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logs writer: %s", err)
	}
	logger, flusher := SetupLogging(config, writer, NewTickClock(clock))
	closer := func() {
		if ferr := flusher(); ferr != nil {
			fmt.Println("error during flushing of logs: ", ferr)
		}
		if cerr := writer.Close(); cerr != nil {
			fmt.Println("error during closing of log file: ", cerr)
		}
	}

	if err = os.MkdirAll(config.Uploads.Folder, 0o755); err != nil {
		closer()
		return app, fmt.Errorf("failed to create uploads folder: %s", err)
	}

	// Setup the connection to redis and boltDB servers.
	redisClient, err := GetRedisClient(config)
	if err != nil {
		closer()
		return app, fmt.Errorf("failed to connect to redis server: %s", err)
	}

	boltDBClient, err := GetBoltDBClient(config)
	if err != nil {
		closer()
		_ = redisClient.Close()
		return app, fmt.Errorf("failed to connect to boltDB server: %s", err)
	}
	ledger := NewBoltLedgerStorage(logger, &config.BoltDB, boltDBClient)

	// Setup the repository and api services and routing.
	storage := NewRedisStorage(logger, redisClient)
	redisQueue := NewRedisQueue(redisClient)
	ledgerConsumer := NewLedgerConsumer(logger, redisQueue, ledger)
	stock := &sync.Mutex{}

	catalogService := NewCatalogService(logger, storage, stock)
	userService := NewUserService(logger, storage, NewJWTHandler(config.Auth.TokenSecret, config.Auth.TokenTTL, clock))
	loanService := NewLoanService(logger, config, clock, storage, redisQueue, ledger, stock)
	apiService := NewAPIHandler(
		logger,
		config,
		&Statistics{
			version:   config.GitTag,
			container: IsAppRunningInDocker(),
			started:   clock.Now(),
			runtime:   runtime.Version(),
			platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		clock,
		NewIDsHandler(),
		catalogService,
		userService,
		loanService,
	)

	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		apiService.stats.version = config.GitCommit
	}

	// Configure the endpoints with their handlers and middlewares stacks.
	router := apiService.SetupRoutes(httprouter.New(), apiService.NewMiddlewareMap())

	// Wrap the router with the default http timeout handler.
	routerWithTimeout := http.TimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.")

	// Build the api server definition.
	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        routerWithTimeout,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
	}

	workers := []func(ctx context.Context) error{
		func(ctx context.Context) error {
			return ledgerConsumer.Consume(ctx, LoanQueues...)
		},
	}
	if apiService.limiter != nil {
		workers = append(workers, func(ctx context.Context) error {
			return apiService.limiter.Run(ctx, time.Minute)
		})
	}
	if interval := config.Library.FinesRefreshInterval; interval > 0 {
		workers = append(workers, NewFinesRefresher(logger, loanService, interval).Run)
	}

	return &App{
		logger:      logger,
		config:      config,
		server:      srv,
		redisClient: redisClient,
		boltClient:  boltDBClient,
		cleanups: []func(){
			closer,
		},
		workers: workers,
	}, nil
}

// Run starts the api server along with the background workers and
// blocks until a stop signal is received or one of them fails.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)
	for _, work := range app.workers {
		work := work
		g.Go(func() error { return work(gCtx) })
	}
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("library server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Int("app.workers", len(app.workers)),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions.
func (app *App) Clean() {
	for _, f := range app.cleanups {
		f()
	}
}

// Serve starts the api web server. Its error is caught by the errgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("library server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
			zap.Duration("fines.refresh", app.config.Library.FinesRefreshInterval),
		)
		if err := app.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Stop waits for the group context then shuts the server down. The server
// is closed abruptly when the graceful shutdown does not complete in time.
// It always returns nil so that the group reports the Serve result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		reason := "errored at running"
		if nCtx.Err() != nil {
			reason = "requested to stop"
		}
		app.logger.Info("library server stopping", zap.String("reason", reason))

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch {
		case err == nil || errors.Is(err, http.ErrServerClosed):
			app.logger.Info("library server graceful shutdown succeeded")
		case errors.Is(err, context.DeadlineExceeded):
			app.logger.Warn("library server graceful shutdown timed out")
			app.logger.Info("library server going to force shutdown", zap.Error(app.server.Close()))
		default:
			app.logger.Error("library server graceful shutdown failed", zap.Error(err))
			app.logger.Info("library server going to force shutdown", zap.Error(app.server.Close()))
		}

		app.closeStores()
		return nil
	}
}

// closeStores releases the redis pool and the ledger file.
func (app *App) closeStores() {
	if err := app.redisClient.Close(); err != nil {
		app.logger.Error("failed to close redis client", zap.Error(err))
	}
	if err := app.boltClient.Close(); err != nil {
		app.logger.Error("failed to close boltdb client", zap.Error(err))
	}
}

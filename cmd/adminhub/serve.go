package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adminhub/internal/analytics"
	"adminhub/internal/api"
	"adminhub/internal/auth"
	"adminhub/internal/config"
	"adminhub/internal/db"
	"adminhub/internal/jobs"
	"adminhub/internal/pubsub"
	"adminhub/internal/service"
	"adminhub/internal/storage"
	"adminhub/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portal API server",
	RunE:  runServe,
}

func newStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	if cfg.Driver == config.StorageS3 {
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			PublicURL: cfg.PublicURL,
		})
	}
	return storage.NewLocalStorage(cfg.LocalDir, cfg.PublicURL)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Server.Location()
	if err != nil {
		return err
	}
	clk := clock.WallClock

	// Chatbot data
	store, err := dialMongo(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Warn("Failed to ensure indexes", zap.Error(err))
	}

	// Portal accounts
	pool, err := db.NewPool(ctx, cfg.Postgres.URL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	redisOpts, jobsOpt, err := redisOptions(cfg.Redis)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	// Event bus and WebSocket hub
	bus := pubsub.New(rdb, logger)
	hub := ws.NewHub(logger, pubsub.PortalChannels...)
	hub.SetStreamsProvider(bus.Streams())
	bus.SetWSHub(hub)
	go hub.Run(ctx)

	jobClient := jobs.NewClient(jobsOpt, clk)
	defer jobClient.Close()

	files, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}

	lang := cfg.Bot.Language
	jwtConfig := auth.NewJWTConfig(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, clk)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler := api.Routes(api.Dependencies{
		Flows:      service.NewFlowService(store.Flows(), store.Questions(), store.Broadcasts(), bus, clk, lang, logger),
		Grading:    service.NewGradingService(store.Messages(), store.Questions(), bus, clk, lang, logger),
		Broadcasts: service.NewBroadcastService(store.Broadcasts(), store.Flows(), store.BotUsers(), pool.Accounts, jobClient, bus, clk, logger),
		BotUsers:   service.NewBotUserService(store.BotUsers(), store.Messages(), clk, logger),
		Accounts:   service.NewAccountService(pool.Accounts, jwtConfig, cfg.Auth.LockAfter, logger),
		Bot:        service.NewBotService(store.Bots(), cfg.Bot.Abbreviation),

		Dashboard: analytics.NewDashboard(clk, loc),
		Analytics: store.Analytics(loc),
		Language:  lang,

		Storage:    files,
		Policies:   storage.DefaultPolicies(cfg.Storage.MaxFileMB),
		PresignTTL: cfg.Storage.PresignTTL,

		Hub:            hub,
		JWT:            jwtConfig,
		AllowedOrigins: cfg.Server.AllowedOrigins,

		Location:       loc,
		RequestTimeout: cfg.Server.RequestTimeout,
		Health: map[string]api.HealthCheck{
			"mongo":    func(context.Context) error { return store.Ping() },
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		Metrics:  api.NewMetrics(reg),
		Gatherer: reg,
		Log:      logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("addr", cfg.Server.Addr), zap.String("timezone", loc.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
	return nil
}

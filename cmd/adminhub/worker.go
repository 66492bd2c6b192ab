package main

import (
	"fmt"

	"github.com/juju/clock"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adminhub/internal/jobs"
	"adminhub/internal/pubsub"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the broadcast dispatch worker",
	Long: `Run the background worker that hands due broadcasts over to the bot
runtime. It stops on SIGINT or SIGTERM.`,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := dialMongo(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	redisOpts, jobsOpt, err := redisOptions(cfg.Redis)
	if err != nil {
		return err
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(cmd.Context()).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	bus := pubsub.New(rdb, logger)
	server := jobs.NewJobServer(jobsOpt, cfg.Worker.Concurrency, store.Broadcasts(), bus, pubsub.ChannelBroadcasts, clock.WallClock, logger)

	logger.Info("Starting worker", zap.Int("concurrency", cfg.Worker.Concurrency))
	if err := server.Run(); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}
	return nil
}

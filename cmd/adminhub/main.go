// Package main implements the adminhub CLI: the portal API server, the
// broadcast worker and the maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"adminhub/internal/config"
	"adminhub/internal/db"
)

var (
	// configPath is an optional YAML file layered over the defaults
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "adminhub",
	Short: "Chatbot admin portal backend",
	Long: `adminhub serves the admin portal API for a chatbot: flows, questions,
grading, broadcasts, bot users and dashboards.

Settings come from built-in defaults, an optional YAML file (--config) and
ADMINHUB_* environment variables.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(indexesCmd)
	rootCmd.AddCommand(usersCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = level
	}
	return zc.Build()
}

// setup loads the config and builds the logger every command starts from.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := initLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func dialMongo(cfg *config.Config, logger *zap.Logger) (*db.Store, error) {
	store, err := db.Dial(cfg.Mongo.URL, cfg.Mongo.Database, cfg.Mongo.Timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	return store, nil
}

func redisOptions(cfg config.RedisConfig) (*redis.Options, asynq.RedisConnOpt, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	connOpt, err := asynq.ParseRedisURI(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url for jobs: %w", err)
	}
	return opts, connOpt, nil
}

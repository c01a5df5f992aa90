package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"medshop/internal/config"
	"medshop/internal/database"
	"medshop/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "medshopctl",
	Short: "Maintenance commands for the medical shop backend",
	Long: `medshopctl runs one-off maintenance tasks against the shop database.
It reads the same environment (and .env file) as the server.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to the console at debug level")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
}

// env is what every command needs: config, a logger and an open pool.
type env struct {
	cfg  *config.Config
	log  *zap.Logger
	pool *database.Pool
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Log
	logCfg.File = ""
	logCfg.Level = "warn"
	if verbose {
		logCfg.Level = "debug"
	}
	log, err := logger.New(cfg.Server.Env, logCfg)
	if err != nil {
		return nil, err
	}

	pool, err := database.Connect(ctx, cfg.Database, log, nil)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, pool: pool}, nil
}

func (e *env) Close() {
	if err := e.pool.Shutdown(); err != nil {
		e.log.Warn("Close database failed", zap.Error(err))
	}
	_ = e.log.Sync()
}

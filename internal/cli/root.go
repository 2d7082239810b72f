package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/tmnhat/basketq/internal/core/config"
)

var (
	cfgPath string
	isDebug bool

	cfg *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "basketq",
	Short: "basketq task execution service",
	Long:  `basketq runs the durable task queue: workers, maintenance replay and failed-task tooling.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		loaded, err := config.Load(cfgPath)
		if err != nil {
			stylelog.InitDefault()
			slog.Error("Failed to load config", "error", err)
			return err
		}
		cfg = loaded

		slogLevel := slog.LevelInfo
		if isDebug || cfg.Logging.Level == "debug" {
			slogLevel = slog.LevelDebug
			cfg.Debug = true
		}

		stylelog.InitDefault(&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging and fast retries")
	rootCmd.SilenceUsage = true
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmnhat/basketq/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depth and record counts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer stopApp(app)

	depth, err := app.Queue().Depth(ctx)
	if err != nil {
		slog.Error("Failed to read queue depth", "error", err)
		os.Exit(1)
	}
	scheduled, err := app.Queue().ScheduledCount(ctx)
	if err != nil {
		slog.Error("Failed to read scheduled count", "error", err)
		os.Exit(1)
	}
	failed, err := app.FailedTasks().Count(ctx)
	if err != nil {
		slog.Error("Failed to count failed tasks", "error", err)
		os.Exit(1)
	}
	queued, err := app.QueuedTasks().Count(ctx)
	if err != nil {
		slog.Error("Failed to count deferred tasks", "error", err)
		os.Exit(1)
	}

	fmt.Printf("queue:     %s\n", app.Queue().Name())
	fmt.Printf("ready:     %d\n", depth)
	fmt.Printf("scheduled: %d\n", scheduled)
	fmt.Printf("failed:    %d\n", failed)
	fmt.Printf("deferred:  %d\n", queued)
	if cfg.Maintenance.Enabled {
		fmt.Printf("maintenance: on (read_only=%v)\n", cfg.Maintenance.ReadOnly)
	}
}

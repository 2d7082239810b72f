package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmnhat/basketq/internal/control"
	"github.com/tmnhat/basketq/internal/maintenance"
)

var numTasks int

var processQueueCmd = &cobra.Command{
	Use:   "process-queue",
	Short: "Replay tasks deferred during maintenance mode",
	Run:   runProcessQueue,
}

func init() {
	processQueueCmd.Flags().IntVarP(&numTasks, "num-tasks", "n", 0, "number of tasks to process (default from config)")
	rootCmd.AddCommand(processQueueCmd)
}

func runProcessQueue(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	limit := numTasks
	if limit <= 0 {
		limit = cfg.Queue.BatchSize
	}

	processor := maintenance.NewProcessor(app.QueuedTasks(), app.Engine(), cfg.Flags())
	count, err := processor.Process(ctx, limit)
	if err != nil {
		slog.Error("Replay failed", "error", err, "processed", count)
		os.Exit(1)
	}

	remaining, err := processor.Remaining(ctx)
	if err != nil {
		slog.Error("Failed to count remaining tasks", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%d processed. %d remaining.\n", count, remaining)
}

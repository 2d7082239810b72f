package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmnhat/basketq/internal/control"
	"github.com/tmnhat/basketq/internal/taskq"
)

var (
	burst         bool
	withScheduler bool
	maxJobs       int
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the task worker loop",
	Run:   runWorker,
}

func init() {
	workerCmd.Flags().BoolVarP(&burst, "burst", "b", false, "run in burst mode and quit when queues are empty")
	workerCmd.Flags().BoolVarP(&withScheduler, "with-scheduler", "s", false, "run with the retry scheduler enabled")
	workerCmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "stop after this many jobs (0 = unlimited)")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize worker", "error", err)
		os.Exit(1)
	}

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down...", "signal", sig)
		cancel()
	}()

	workErr := app.RunWorker(ctx, taskq.WorkerOptions{
		Burst:         burst,
		WithScheduler: withScheduler,
		MaxJobs:       maxJobs,
	})

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
	}

	if workErr != nil {
		slog.Error("Worker exited with error", "error", workErr)
		os.Exit(1)
	}
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmnhat/basketq/internal/control"
)

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "Inspect and replay failed task records",
}

var failedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List failed task records",
	Run:   runFailedList,
}

var failedRetryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Re-enqueue a failed task from its stored call",
	Args:  cobra.ExactArgs(1),
	Run:   runFailedRetry,
}

func init() {
	failedCmd.AddCommand(failedListCmd)
	failedCmd.AddCommand(failedRetryCmd)
	rootCmd.AddCommand(failedCmd)
}

func runFailedList(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer stopApp(app)

	records, err := app.FailedTasks().GetAll(ctx)
	if err != nil {
		slog.Error("Failed to list failed tasks", "error", err)
		os.Exit(1)
	}

	if len(records) == 0 {
		fmt.Println("No failed tasks.")
		return
	}
	for _, rec := range records {
		fmt.Printf("%d\t%s\t%s\t%s\n", rec.ID, rec.When.Format(time.RFC3339), rec.FormattedCall(), rec.Exc)
	}
}

func runFailedRetry(cmd *cobra.Command, args []string) {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		slog.Error("Invalid failed task id", "arg", args[0])
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer stopApp(app)

	rec, err := app.FailedTasks().Get(ctx, id)
	if err != nil {
		slog.Error("Failed to load failed task", "id", id, "error", err)
		os.Exit(1)
	}

	if err := app.Engine().RetryFailed(ctx, rec); err != nil {
		slog.Error("Failed to re-enqueue task", "id", id, "error", err)
		os.Exit(1)
	}

	fmt.Printf("Re-enqueued %s\n", rec.FormattedCall())
}

func stopApp(app *control.App) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.Stop(stopCtx)
}

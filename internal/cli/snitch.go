package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmnhat/basketq/internal/control"
	"github.com/tmnhat/basketq/internal/tasks"
)

var snitchCmd = &cobra.Command{
	Use:   "snitch",
	Short: "Enqueue the dead man's snitch heartbeat",
	Run:   runSnitch,
}

func init() {
	rootCmd.AddCommand(snitchCmd)
}

func runSnitch(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	defer stopApp(app)

	env, err := tasks.Snitch(ctx, app.Engine())
	if err != nil {
		slog.Error("Failed to enqueue snitch", "error", err)
		os.Exit(1)
	}
	if env == nil {
		fmt.Println("Snitch deferred by maintenance mode.")
		return
	}
	fmt.Printf("Snitch enqueued: %s\n", env.ID)
}

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/conductor/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume tasks from Redis",
	Long: `Starts the task consumer. Every task is processed on its own goroutine; on
SIGINT or SIGTERM the consumer stops receiving and waits for the tasks in flight.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return cli.Serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("redis", "", "Redis URL, e.g. redis://localhost:6379/0")
	serveCmd.Flags().String("metrics-addr", "", "address of the health and metrics server, e.g. :9090")
	serveCmd.Flags().String("queue", "", "queue tasks are consumed from")
	serveCmd.Flags().Bool("lock", false, "guard each message id with a Redis lock")
	serveCmd.Flags().String("stack-url", "", "orchestration service endpoint")
}

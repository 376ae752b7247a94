package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/conductor/internal/cli"
	"github.com/aretw0/conductor/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Conductor drives declarative XML workflows over task data",
	Long: `Conductor consumes tasks from a queue, runs the loaded XML workflows against
each task until it stops changing, sends the queued stack and agent commands,
and publishes the finished task as the result.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "configuration file (default ./conductor.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("workflows", "", "directory holding the workflow documents")
	rootCmd.PersistentFlags().String("templates", "", "directory holding the stack and agent templates")
}

// loadConfig reads the configuration with the command's flags on top.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	file, _ := cmd.Flags().GetString("config")
	flags := map[string]*pflag.Flag{
		"log.level":     cmd.Flags().Lookup("log-level"),
		"workflows.dir": cmd.Flags().Lookup("workflows"),
		"templates.dir": cmd.Flags().Lookup("templates"),
		"redis.url":     cmd.Flags().Lookup("redis"),
		"metrics.addr":  cmd.Flags().Lookup("metrics-addr"),
		"queues.tasks":  cmd.Flags().Lookup("queue"),
		"lock.enabled":  cmd.Flags().Lookup("lock"),
		"stack.url":     cmd.Flags().Lookup("stack-url"),
	}
	cfg, err := config.Load(config.Options{File: file, Flags: flags})
	if err != nil {
		return nil, nil, err
	}
	logger, err := cli.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

package main

import (
	"github.com/aretw0/conductor/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run --task task.json",
	Short: "Process one task locally and print the result",
	Long: `Runs the workflows against the task read from a JSON file, without a broker.
The stack channel is used when stack.url is configured; agent commands are not
available because no agent listens in process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		opts := cli.RunOptions{}
		opts.TaskFile, _ = cmd.Flags().GetString("task")
		opts.MessageID, _ = cmd.Flags().GetString("message-id")
		opts.Validate, _ = cmd.Flags().GetBool("validate")
		return cli.RunTask(cmd.Context(), cfg, logger, opts, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("task", "", "JSON file holding the task body")
	runCmd.Flags().String("message-id", "", "message id of the result (default random)")
	runCmd.Flags().Bool("validate", true, "validate the task against the task schema first")
	runCmd.Flags().String("stack-url", "", "orchestration service endpoint")
	_ = runCmd.MarkFlagRequired("task")
}

package main

import (
	"fmt"

	"github.com/aretw0/conductor/pkg/schema"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of task messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := schema.Generate()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
		return err
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Fetch the API schema and list its operations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, acc, _ := newPipeline()

		c, err := acc.Client(cmd.Context(), false)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "schema: %s\n", acc.SchemaURL())
		fmt.Fprintf(out, "server: %s\n", c.Server())
		for _, op := range c.Operations() {
			fmt.Fprintf(out, "  %s\n", op)
		}
		return nil
	},
}

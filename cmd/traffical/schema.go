package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/traffical/traffical-go/pkg/config"
	"github.com/traffical/traffical-go/pkg/presenter"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of the project config file",
	Run: func(cmd *cobra.Command, args []string) {
		schema, err := config.Schema()
		if err != nil {
			presenter.Error(err, "Failed to generate schema")
			os.Exit(1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	},
}

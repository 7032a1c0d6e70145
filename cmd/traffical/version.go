package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/traffical/traffical-go/pkg/presenter"
	"github.com/traffical/traffical-go/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		short, _ := cmd.Flags().GetBool("short")
		output, _ := cmd.Flags().GetString("output")

		if err := writeVersion(cmd.OutOrStdout(), version.Get(), short, output); err != nil {
			presenter.Error(err, "Failed to print version")
			os.Exit(1)
		}
	},
}

func writeVersion(w io.Writer, info version.Info, short bool, output string) error {
	if short {
		_, err := fmt.Fprintln(w, info.Version)
		return err
	}

	switch output {
	case "", "text":
		_, err := fmt.Fprintln(w, info.String())
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml":
		return yaml.NewEncoder(w).Encode(info)
	default:
		return errors.Errorf("unknown output format %q (want text, json or yaml)", output)
	}
}

func init() {
	versionCmd.Flags().Bool("short", false, "Print only the version number")
	versionCmd.Flags().StringP("output", "o", "text", "Output format (text, json, yaml)")
}

// Command xlpivot evaluates, inserts and converts spreadsheet pivot formulas
// over an in-memory dataset described by a YAML config.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xlpivot",
		Short: "Spreadsheet pivot formulas over an in-memory dataset",
		Long: `xlpivot builds pivot caches from the dataset and pivots of a YAML config
and evaluates, inserts, validates or converts PIVOT formulas in xlsx workbooks.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "xlpivot.yaml", "Config file path")

	rootCmd.AddCommand(
		newEvalCmd(),
		newAutofillCmd(),
		newDescribeCmd(),
		newInsertCmd(),
		newTemplateCmd(),
		newCheckCmd(),
	)
	return rootCmd
}

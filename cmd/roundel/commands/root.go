// Package commands provides the CLI commands for the roundel tool.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "roundel [file.real]",
	Short: "Static floating-point roundoff-error analyzer",
	Long: `roundel computes sound worst-case roundoff error bounds for small
real-valued numeric kernels.

Given functions over exact reals with preconditions fixing their input
ranges, it reports for each one the real result range and a bound on the
absolute roundoff error of evaluating it in a finite precision.

Usage:
  roundel [file.real]             Analyze a file (shorthand)
  roundel analyze [file.real]     Analyze explicitly
  roundel version                 Print version`,
	Args:          cobra.ArbitraryArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	// Run analyze by default if a .real file is provided as argument.
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 && strings.HasSuffix(args[0], ".real") {
			return runAnalyze(cmd, args)
		}
		if len(args) == 0 {
			return cmd.Help()
		}
		return fmt.Errorf("unknown command %q for \"roundel\"\nRun 'roundel --help' for usage", args[0])
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)

	// Mirror the analyze flags on the root for the shorthand form.
	addAnalyzeFlags(rootCmd)
}

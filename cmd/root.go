package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "codesense",
	Short: "LLM-assisted security review of source trees",
	Long: `codesense walks a source tree, sends each file in overlapping chunks to a
language model primed with security reference material, and turns the
free-text answers into deduplicated findings pinned to exact line ranges.

Get started:
  codesense config init   Write a default config file
  codesense doctor        Verify the model, knowledge index and database
  codesense scan          Scan a directory or repository
  codesense gateway       Start the REST + SSE daemon
  codesense ui            Browse past scans in the terminal
  codesense profiles      List review profiles`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.codesense/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		scanCmd,
		gatewayCmd,
		uiCmd,
		configCmd,
		doctorCmd,
		profilesCmd,
	)
}

func initLogging() {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}

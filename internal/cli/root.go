// Package cli wires the pulseboard commands.
package cli

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/buildinfo"
	"github.com/pulseboard/pulseboard/internal/config"
	"github.com/pulseboard/pulseboard/internal/logging"
)

const (
	// ANSI color codes
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorDim   = "\033[2m"
	colorRed   = "\033[31m"

	styleBoldCyan  = "\033[1;36m"
	styleBoldWhite = "\033[1;37m"
)

var rootCmd = &cobra.Command{
	Use:   "pulseboard",
	Short: "Live monitoring for coding-agent sessions",
	Long: colorBold + `
                 _            _                         _
      _ __  _   _| |___  ___| |__   ___   __ _ _ __ __| |
     | '_ \| | | | / __|/ _ \ '_ \ / _ \ / _` + "`" + ` | '__/ _` + "`" + ` |
     | |_) | |_| | \__ \  __/ |_) | (_) | (_| | | | (_| |
     | .__/ \__,_|_|___/\___|_.__/ \___/ \__,_|_|  \__,_|
     |_|` + colorReset + `

  ` + styleBoldCyan + `Live monitoring for coding-agent sessions` + colorReset + ` v` + buildinfo.Current().Version + `

  Agents report lifecycle, timeline and token-usage events over HTTP;
  pulseboard stores them and streams updates to terminal dashboards.

  Run ` + styleBoldWhite + `pulseboard serve` + colorReset + ` on the machine collecting events, and
  ` + styleBoldWhite + `pulseboard dash` + colorReset + ` anywhere you want to watch.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		// With no subcommand, open the dashboard when interactive.
		if isatty.IsTerminal(os.Stdout.Fd()) {
			return runDash(cmd, args)
		}
		return cmd.Help()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().Bool("debug", false, "Enable verbose debug logging to ~/.pulseboard/logs/")
	rootCmd.PersistentFlags().String("debug-file", "", "Write debug logs to a specific file")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		debugFlag, _ := cmd.Flags().GetBool("debug")
		debugFile, _ := cmd.Flags().GetString("debug-file")
		if err := logging.Initialize(debugFlag, debugFile, config.LogDir()); err != nil {
			return fmt.Errorf("initializing debug logger: %w", err)
		}
		if debugFlag {
			fmt.Fprintf(os.Stderr, "%s[debug]%s logging enabled\n", colorDim, colorReset)
		}
		bi := buildinfo.Current()
		logging.Logger.Debug("pulseboard starting",
			"version", bi.Version,
			"commit", bi.CommitHash,
			"pid", os.Getpid(),
			"command", cmd.Name(),
		)
		return nil
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logging.Logger.Error("exit with error", "error", err)
		fmt.Fprintf(os.Stderr, "%sError: %s%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pulseboard/pulseboard/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		bi := buildinfo.Current()
		fmt.Printf("pulseboard %s\n", bi.Version)
		fmt.Printf("  commit: %s\n", bi.CommitHash)
		fmt.Printf("  built:  %s\n", bi.BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

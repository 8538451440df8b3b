package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emortalmc/live-config-parser/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Resolve(buildVersion, buildCommit, buildDate)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "version: %s\n", info.Version)
		fmt.Fprintf(out, "channel: %s\n", info.Channel)
		fmt.Fprintf(out, "build:   %s\n", buildVersion)
		fmt.Fprintf(out, "commit:  %s\n", info.Commit)
		fmt.Fprintf(out, "date:    %s\n", info.Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wlyh514/discord-llmvc-bot/runtime/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

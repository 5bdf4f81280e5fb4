// Command llmvc runs the voice channel agent behind a gateway WebSocket.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
	"github.com/wlyh514/discord-llmvc-bot/runtime/version"
)

var rootCmd = &cobra.Command{
	Use:           "llmvc",
	Short:         "Multi-party voice channel agent",
	Version:       version.GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `llmvc listens to everyone in a voice channel, decides when a turn of
conversation is over, asks an LLM agent what to say and speaks the reply back,
pausing when someone talks over it.

Voice I/O arrives from a gateway process over a WebSocket.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if cmd.Flags().Changed("verbose") {
			if verbose, err := cmd.Flags().GetBool("verbose"); err == nil {
				logger.SetVerbose(verbose)
			}
		}
	},
}

func main() {
	rootCmd.SetVersionTemplate(version.GetVersionInfo() + "\n")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wlyh514/discord-llmvc-bot/pkg/config"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
	"github.com/wlyh514/discord-llmvc-bot/runtime/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept gateway connections and run a voice session per connection",
	Long: `Starts the gateway WebSocket endpoint and, when enabled, the Prometheus
exporter. Each gateway connection gets its own voice session. SIGINT or
SIGTERM ends every session and exits.

Examples:
  llmvc serve --config llmvc.yaml
  OPENAI_API_KEY=sk-... llmvc serve --verbose`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveConfigPath string
	serveVerbose    bool
)

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to the YAML configuration file")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if err := logger.Configure(cfg.LoggingSpec()); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	if serveVerbose {
		logger.SetVerbose(true)
	}
	logger.Info("llmvc starting", version.GetBuildInfo()...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		a.shutdown(ctx)
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}
	return a.run(ctx, ln)
}

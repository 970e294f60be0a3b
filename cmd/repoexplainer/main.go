// Command repoexplainer explains GitHub repositories with an LLM. It serves
// the HTTP, SSE, and WebSocket API, runs one-off explanations from the
// terminal, and exposes the pipeline as an MCP tool over stdio.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/BaoNguyen09/repo-explainer/internal/config"
	"github.com/BaoNguyen09/repo-explainer/internal/logger"
)

var version = "dev"

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:           "repoexplainer",
	Short:         "Explain GitHub repositories with an LLM",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", config.DefaultConfigFile, "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, explainCmd, mcpCmd, cacheCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "repoexplainer:", err)
		os.Exit(1)
	}
}

// setup loads the configuration and installs the default logger writing to w.
// The returned function flushes the logger.
func setup(w io.Writer) (*config.Config, func(), error) {
	cfg, err := config.LoadFrom(rootFlags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, closer := logger.NewWithWriter(cfg.Logging, w)
	slog.SetDefault(log)
	return cfg, closer.Close, nil
}

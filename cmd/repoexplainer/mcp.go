package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	cfmcp "github.com/BaoNguyen09/repo-explainer/internal/adapter/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the explain_repository tool over MCP stdio",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// stdout carries the protocol.
		cfg, flush, err := setup(os.Stderr)
		if err != nil {
			return err
		}
		defer flush()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := cfmcp.NewServer(cfmcp.ServerConfig{Version: version}, a.svc)
		return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
	},
}

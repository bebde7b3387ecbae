package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lattice-dev/lattice/internal/mcpserver"
	"github.com/lattice-dev/lattice/internal/metrics"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Run the MCP server over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		registry := mcpserver.NewRegistry()
		mcpserver.RegisterTaskTools(registry, a.svc, a.sel, a.checker)
		server := mcpserver.NewServer(registry, mcpserver.ServerInfo{
			Name:    a.ambient.Server.Name,
			Version: resolveVersion(a),
		}, a.logger)

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		a.startIntegritySweep(ctx)
		return server.Run(ctx)
	},
}

var flagHTTPAddr string

var serveHTTPCmd = &cobra.Command{
	Use:   "serve-http",
	Short: "Run the MCP server over Streamable HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flagRoot, flagConfig)
		if err != nil {
			return err
		}
		registry := mcpserver.NewRegistry()
		mcpserver.RegisterTaskTools(registry, a.svc, a.sel, a.checker)
		server := mcpserver.NewServer(registry, mcpserver.ServerInfo{
			Name:    a.ambient.Server.Name,
			Version: resolveVersion(a),
		}, a.logger)

		addr := flagHTTPAddr
		if addr == "" {
			addr = a.ambient.Transport.Host + ":" + a.ambient.Transport.Port
		}
		httpServer := mcpserver.NewHTTPServer(server, a.ambient.Transport.CORSOrigins, a.logger)

		mux := http.NewServeMux()
		mux.Handle("/", httpServer.Handler())
		if a.ambient.Metrics.Enabled {
			mux.Handle("/metrics", metrics.Handler())
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		a.startIntegritySweep(ctx)

		a.logger.Info().Str("addr", addr).Msg("serving mcp over http")
		return http.ListenAndServe(addr, mux)
	},
}

func init() {
	serveHTTPCmd.Flags().StringVar(&flagHTTPAddr, "addr", "", "listen address (default: transport.host:transport.port from ambient config)")
}

func resolveVersion(a *app) string {
	if a.ambient.Server.Version != "" {
		return a.ambient.Server.Version
	}
	if Version != "dev" {
		return Version
	}
	return "dev"
}

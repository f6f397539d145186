package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Nyukimin/toolrouter/internal/adapter/httpapi"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP, JSON-RPC and WebSocket server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := buildDependencies(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.Health.Schedule != "" {
		if err := deps.monitor.Start(ctx, cfg.Health.Schedule); err != nil {
			return err
		}
	} else {
		deps.monitor.RunAll(ctx)
	}

	srv := httpapi.NewServer(httpapi.Options{
		Sessions:   deps.pool,
		Catalog:    deps.invoker.Registry(),
		Executor:   deps.invoker,
		RPC:        deps.rpc,
		Health:     deps.monitor,
		Classifier: deps.classifier != nil,
	})
	return srv.ListenAndServe(ctx, cfg.Server.Addr())
}

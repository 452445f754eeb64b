package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/status-im/credential-host/loader"
	"github.com/status-im/credential-host/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API",
		Long: `Run the admin HTTP API over the credential types and stored credentials.

Descriptor directories are rescanned every rescan_interval; new types become
available without a restart. /v1 routes require a token minted with
'credhost token'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, true)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.logger.Info("Credential types loaded", "names", rt.registry.Names())

			if cfg.RescanInterval > 0 && len(cfg.DescriptorDirs) > 0 {
				w := loader.NewWatcher(rt.loader, cfg.DescriptorDirs, cfg.RescanInterval)
				w.Start()
				defer w.Stop()
			}

			serverOpts := []server.Option{
				server.WithLogger(rt.logger),
				server.WithMetrics(rt.metrics),
				server.WithRateLimits(rt.limits),
			}
			for _, p := range rt.health {
				serverOpts = append(serverOpts, server.WithHealthCheck(p))
			}

			srv, err := server.New(cfg, rt.registry, rt.store, serverOpts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the configured listen address")
	return cmd
}

// commandContext returns the command context, or Background when run outside Execute
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

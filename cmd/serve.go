package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"portalsim/engine/internal/logging"
	"portalsim/engine/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation and stream snapshots to renderers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(a.cfg, a.logger)
			if err != nil {
				return err
			}
			a.logger.Info("starting portalsim",
				logging.String("version", Version),
				logging.String("address", a.cfg.Address),
				logging.String("codec", a.cfg.Stream.Codec),
				logging.Float("tick_rate_hz", a.cfg.TickRateHz),
			)
			return srv.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("address", "", "HTTP and WebSocket listen address")
	flags.String("health-address", "", "gRPC health listen address; empty disables it")
	flags.Float64("tick-rate", 0, "simulation frequency in Hz")
	flags.String("codec", "", "snapshot compression: none, gzip, zstd or snappy")
	flags.String("admin-token", "", "bearer token guarding /admin endpoints")
	_ = a.v.BindPFlag("address", flags.Lookup("address"))
	_ = a.v.BindPFlag("health_address", flags.Lookup("health-address"))
	_ = a.v.BindPFlag("tick_rate_hz", flags.Lookup("tick-rate"))
	_ = a.v.BindPFlag("stream.codec", flags.Lookup("codec"))
	_ = a.v.BindPFlag("admin_token", flags.Lookup("admin-token"))
	return cmd
}

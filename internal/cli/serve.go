package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/UCKETX/mcsm-templates/internal/api"
	"github.com/UCKETX/mcsm-templates/internal/config"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog read API over HTTP",
		Long: `Serve the catalog as JSON:

  GET /core
  GET /core/{core_type}
  GET /core/{core_type}/{mc_version}
  GET /core/{core_type}/{mc_version}/{core_version}

Example:
  coresync serve --addr :8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			cat, err := openCatalog(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := cat.Close(); closeErr != nil {
					logger.Error("error closing catalog", "error", closeErr)
				}
			}()

			ctx, stop := signalContext(cmd, logger)
			defer stop()

			srv := api.NewServer(cat, api.WithLogger(logger))
			if err := srv.Serve(ctx, cfg.Serve.Addr); err != nil && !errors.Is(err, context.Canceled) {
				return WrapExitError(ExitCommandError, "server error", err)
			}
			logger.Info("server stopped gracefully")
			return nil
		},
	}

	cmd.Flags().String("addr", config.DefaultServeAddr, "listen address")

	return cmd
}

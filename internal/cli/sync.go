package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/UCKETX/mcsm-templates/internal/adapter"
	"github.com/UCKETX/mcsm-templates/internal/adapter/sources"
	"github.com/UCKETX/mcsm-templates/internal/config"
	"github.com/UCKETX/mcsm-templates/internal/coordinator"
	"github.com/UCKETX/mcsm-templates/internal/fetch"
	"github.com/UCKETX/mcsm-templates/internal/store"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Cores []string
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Fetch builds from upstream sources into the catalog",
		Long: `Run every configured adapter concurrently and merge the builds they
return into the catalog. Failing adapters are reported and do not stop the
others.

With --interval the sync repeats until interrupted.

Example:
  coresync sync
  coresync sync --core Forge --core Vanilla --retention
  coresync sync --interval 30m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Cores, "core", nil, "only sync the named cores (repeatable)")
	cmd.Flags().Duration("interval", 0, "repeat the sync at this interval (0 runs once)")
	cmd.Flags().Bool("retention", false, "apply retention after each sync")
	cmd.Flags().Int("cap", config.DefaultRetentionCap, "rows kept per table by retention")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	cfg, logger, err := opts.setup(cmd)
	if err != nil {
		return err
	}

	client := fetch.NewClient(append(cfg.FetchOptions(), fetch.WithLogger(logger))...)
	defer client.Close()

	factories := opts.Factories
	if factories == nil {
		factories = sources.Factories()
	}
	reg, err := factories.Build(cfg.Cores, adapter.Deps{Client: client, Logger: logger})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build adapters", err)
	}
	reg, err = reg.Select(opts.Cores...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to select cores", err)
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

	coord := newCoordinator(cfg, opts.RootOptions, cat, reg, logger)

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	out := opts.formatter(cmd)
	out.VerboseLog("syncing %d cores into %s", reg.Len(), cfg.StoreDir())
	if cfg.Sync.Interval > 0 {
		logger.Info("scheduled sync", "interval", cfg.Sync.Interval, "cores", reg.Names())
		err := coord.Schedule(ctx, cfg.Sync.Interval, func(r coordinator.RunReport) {
			_ = out.Success(newSyncView(r))
		})
		if err != nil && ctx.Err() == nil {
			return WrapExitError(ExitCommandError, "sync schedule failed", err)
		}
		logger.Info("sync stopped gracefully")
		return nil
	}

	report := coord.Run(ctx)
	if err := out.Success(newSyncView(report)); err != nil {
		return err
	}
	if err := report.Err(); err != nil {
		return WrapExitError(ExitFailure, "sync finished with failures", err)
	}
	return nil
}

func newCoordinator(cfg *config.Loaded, opts *RootOptions, cat *store.Catalog, reg *adapter.Registry, logger *slog.Logger) *coordinator.Coordinator {
	copts := []coordinator.Option{
		coordinator.WithLogger(logger),
		coordinator.WithAdapterConcurrency(cfg.Sync.AdapterConcurrency),
		coordinator.WithMergeConcurrency(cfg.Sync.MergeConcurrency),
	}
	if cfg.Sync.RetentionAfterSync {
		copts = append(copts, coordinator.WithRetention(cfg.Sync.RetentionCap, cat))
	}
	if opts.RunIDs != nil {
		copts = append(copts, coordinator.WithRunIDGenerator(opts.RunIDs))
	}
	return coordinator.New(cat, reg, copts...)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// Uses the command's context if available (for testing).
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

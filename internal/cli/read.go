package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/UCKETX/mcsm-templates/internal/config"
	"github.com/UCKETX/mcsm-templates/internal/store"
)

// openCatalog opens the catalog under cfg's store directory.
func openCatalog(cfg *config.Loaded, logger *slog.Logger) (*store.Catalog, error) {
	cat, err := store.OpenCatalog(cfg.StoreDir(), store.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open catalog", err)
	}
	return cat, nil
}

// withCatalog runs fn against the configured catalog and closes it after.
func (o *RootOptions) withCatalog(cmd *cobra.Command, fn func(ctx context.Context, cat *store.Catalog) error) error {
	cfg, logger, err := o.setup(cmd)
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

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, cat)
}

// readError maps catalog read errors to exit codes.
func readError(err error) error {
	switch {
	case store.IsNotFound(err):
		return WrapExitError(ExitNotFound, "not found", err)
	case errors.Is(err, store.ErrInvalidCoreType):
		return WrapExitError(ExitCommandError, "invalid core type", err)
	default:
		return WrapExitError(ExitCommandError, "failed to read catalog", err)
	}
}

// NewCoresCommand creates the cores command.
func NewCoresCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cores",
		Short: "List core types present in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withCatalog(cmd, func(ctx context.Context, cat *store.Catalog) error {
				cores, err := cat.CoreTypes()
				if err != nil {
					return readError(err)
				}
				return opts.formatter(cmd).Success(listView{key: "cores", items: cores})
			})
		},
	}
}

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <core>",
		Short: "List Minecraft versions of a core, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withCatalog(cmd, func(ctx context.Context, cat *store.Catalog) error {
				versions, err := cat.ListVersions(ctx, args[0])
				if err != nil {
					return readError(err)
				}
				if len(versions) == 0 {
					return NewExitError(ExitNotFound, fmt.Sprintf("no versions for core %s", args[0]))
				}
				return opts.formatter(cmd).Success(listView{key: "versions", items: versions})
			})
		},
	}
}

// NewBuildsCommand creates the builds command.
func NewBuildsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "builds <core> <mc-version>",
		Short: "List builds of one core table, newest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withCatalog(cmd, func(ctx context.Context, cat *store.Catalog) error {
				builds, err := cat.ListBuilds(ctx, args[0], args[1])
				if err != nil {
					return readError(err)
				}
				return opts.formatter(cmd).Success(listView{key: "builds", items: builds})
			})
		},
	}
}

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <core> <mc-version> <core-version>",
		Short: "Show one build",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withCatalog(cmd, func(ctx context.Context, cat *store.Catalog) error {
				build, err := cat.GetBuild(ctx, args[0], args[1], args[2])
				if err != nil {
					return readError(err)
				}
				return opts.formatter(cmd).Success(buildView{Build: build})
			})
		},
	}
}

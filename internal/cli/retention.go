package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/UCKETX/mcsm-templates/internal/config"
	"github.com/UCKETX/mcsm-templates/internal/store"
)

// NewRetentionCommand creates the retention command.
func NewRetentionCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention [core...]",
		Short: "Trim every table of the given cores to the retention cap",
		Long: `Keep only the most recently inserted rows of each table and drop tables
left empty. With no arguments every core in the catalog is trimmed.

Example:
  coresync retention
  coresync retention --cap 10 Forge Arclight`,
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

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			results, err := applyRetention(ctx, cat, args, cfg.Sync.RetentionCap)
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Success(retentionView{Results: results})
		},
	}

	cmd.Flags().Int("cap", config.DefaultRetentionCap, "rows kept per table")

	return cmd
}

func applyRetention(ctx context.Context, cat *store.Catalog, coreTypes []string, keep int) ([]store.RetentionResult, error) {
	if len(coreTypes) == 0 {
		all, err := cat.CoreTypes()
		if err != nil {
			return nil, readError(err)
		}
		coreTypes = all
	}

	results := make([]store.RetentionResult, 0, len(coreTypes))
	for _, ct := range coreTypes {
		res, err := cat.Retention(ctx, ct, keep)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "retention failed for "+ct, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Package cli implements the coresync command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/UCKETX/mcsm-templates/internal/adapter"
	"github.com/UCKETX/mcsm-templates/internal/config"
	"github.com/UCKETX/mcsm-templates/internal/coordinator"
	"github.com/UCKETX/mcsm-templates/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	Verbose    bool
	Format     string // "text" | "json" | "yaml" | "table"

	// Factories overrides the adapter kinds available to sync (for testing).
	// If nil, the built-in sources are used.
	Factories adapter.Factories

	// RunIDs overrides the sync run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs coordinator.RunIDGenerator

	// LogWriter receives log output. If nil, logs go to stderr.
	LogWriter io.Writer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml", "table"}

// NewRootCommand creates the root command for the coresync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coresync",
		Short: "coresync - Minecraft server core build catalog",
		Long: `Collect Minecraft server core builds from upstream sources into a
per-core SQLite catalog, and serve the catalog over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.ConfigFile, "config", "", "config file (default: ./coresync.yaml if present)")
	pf.String("data-dir", config.DefaultDataDir, "directory holding the catalog")
	pf.String("database-type", config.DefaultDatabaseType, "catalog subdirectory under the data directory")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	pf.StringVar(&opts.Format, "format", "text", "output format (text|json|yaml|table)")
	pf.String("log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")
	pf.String("log-format", config.DefaultLogFormat, "log format (text|json)")

	// Add subcommands
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewRetentionCommand(opts))
	cmd.AddCommand(NewCoresCommand(opts))
	cmd.AddCommand(NewVersionsCommand(opts))
	cmd.AddCommand(NewBuildsCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// setup loads configuration for cmd and installs the logger it describes.
func (o *RootOptions) setup(cmd *cobra.Command) (*config.Loaded, *slog.Logger, error) {
	cfg, err := config.Load(o.ConfigFile, cmd.Flags())
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := cfg.Log.Level
	if o.Verbose && !cmd.Flags().Changed("log-level") {
		level = "debug"
	}
	w := o.LogWriter
	if w == nil {
		w = cmd.ErrOrStderr()
	}
	logger := logging.Setup(level, cfg.Log.Format, w)
	if cfg.File != "" {
		logger.Debug("config loaded", "file", cfg.File)
	}
	return cfg, logger, nil
}

// Execute runs the CLI with args and returns the process exit code. Errors
// are reported on stderr in the selected output format.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	format := opts.Format
	if !slices.Contains(ValidFormats, format) {
		format = "text"
	}
	out := &OutputFormatter{Format: format, Writer: stderr, Verbose: opts.Verbose}
	_ = out.Error(ErrorCode(err), err.Error(), nil)

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		// Usage errors from cobra: unknown command, bad flag, wrong args.
		return ExitCommandError
	}
	return exitErr.Code
}

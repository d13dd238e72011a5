package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mevdschee/tqloader/store"
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create and fill the facility and organization tables",
		Long: `Drop and recreate the facility and organization tables and insert the
sample rows in a single transaction.

Example:
  tqloader seed --config loader.ini`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, cmd)
		},
	}
}

func runSeed(opts *RootOptions, cmd *cobra.Command) error {
	logger := opts.newLogger(cmd)
	defer logger.Sync()

	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	ctx := cmd.Context()
	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer st.Close()

	if err := st.Setup(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to seed store", err)
	}
	logger.Info("store seeded", zap.String("driver", st.Dialect().Name()))

	_, err = fmt.Fprintln(cmd.OutOrStdout(), "seeded organization and facility tables")
	return err
}

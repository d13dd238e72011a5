package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mevdschee/tqloader/replica"
	"github.com/mevdschee/tqloader/resolver"
	"github.com/mevdschee/tqloader/store"
)

var errNonPositiveID = errors.New("organization id must be positive")

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	NoSeed bool
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the organization of every facility in batches",
		Long: `Load all facilities and resolve each facility's organization concurrently.
The lookups are coalesced by the resolver so the organization table is
queried once per batching window instead of once per facility.

Example:
  tqloader resolve
  tqloader resolve --config loader.ini --format json --no-seed`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoSeed, "no-seed", false, "use the existing tables instead of recreating them")

	return cmd
}

func runResolve(opts *ResolveOptions, cmd *cobra.Command) error {
	logger := opts.newLogger(cmd)
	defer logger.Sync()

	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startMetricsServer(ctx, cfg.Metrics.Listen, logger)

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer st.Close()
	// Registered after Close so the checks stop before the handles close
	defer startHealthChecks(ctx, st.Pool(), 10*time.Second)()

	if !opts.NoSeed {
		if err := st.Setup(ctx); err != nil {
			return WrapExitError(ExitCommandError, "failed to seed store", err)
		}
	}

	facilities, err := st.Facilities(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load facilities", err)
	}

	var fetches atomic.Int64
	fetch := func(ctx context.Context, ids []int64) (map[int64]store.Organization, error) {
		fetches.Add(1)
		return st.OrganizationsByID(ctx, ids)
	}
	r := resolver.New("organizations", fetch, cfg.Resolver, logger).
		WithKeyValidator(func(id int64) error {
			if id <= 0 {
				return errNonPositiveID
			}
			return nil
		})
	defer r.Close()
	go r.StartAdaptiveAdjustment(ctx)

	results := resolveOrganizations(ctx, r, facilities, cfg.Resolver.Manual)
	resolutions, resolveErr := collectResolutions(facilities, results)

	logger.Info("organizations resolved",
		zap.Int("facilities", len(facilities)),
		zap.Int64("fetches", fetches.Load()))

	if err := writeResolutions(cmd.OutOrStdout(), opts.Format, resolutions); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}
	if resolveErr != nil {
		return WrapExitError(ExitFailure, "resolution failed", resolveErr)
	}
	return nil
}

// startHealthChecks runs replica health checks until the returned stop
// function is called. stop waits for the running check to finish.
func startHealthChecks(ctx context.Context, pool *replica.Pool, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.StartHealthChecks(ctx, interval)
	}()
	return func() {
		cancel()
		<-done
	}
}

// resolveOrganizations issues one resolve per facility. In manual mode all
// keys are registered and drained as one unit of work; otherwise every
// facility resolves from its own goroutine and the window timer flushes.
func resolveOrganizations(ctx context.Context, r *resolver.Resolver[int64, store.Organization], facilities []store.Facility, manual bool) []resolver.Result[store.Organization] {
	ids := make([]int64, len(facilities))
	for i, f := range facilities {
		ids[i] = f.OrganizationID
	}
	if manual {
		return r.ResolveAll(ctx, ids)
	}

	results := make([]resolver.Result[store.Organization], len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			results[i] = r.Resolve(ctx, id)
			return nil
		})
	}
	g.Wait()
	return results
}

func collectResolutions(facilities []store.Facility, results []resolver.Result[store.Organization]) ([]Resolution, error) {
	var errs error
	resolutions := make([]Resolution, len(facilities))
	for i, f := range facilities {
		resolutions[i] = Resolution{Facility: f}
		result := results[i]
		switch {
		case result.Err != nil:
			resolutions[i].Error = result.Err.Error()
			errs = multierror.Append(errs, fmt.Errorf("facility %d: %w", f.ID, result.Err))
		case result.Found:
			org := result.Value
			resolutions[i].Organization = &org
		}
	}
	return resolutions, errs
}

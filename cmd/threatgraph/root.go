package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-threatgraph/pkg/config"
	"github.com/dd0wney/cluso-threatgraph/pkg/health"
	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
	"github.com/dd0wney/cluso-threatgraph/pkg/metrics"
	"github.com/dd0wney/cluso-threatgraph/pkg/pipeline"
)

// app carries what the root command sets up for its subcommands.
type app struct {
	cfgFile string

	cfg     *config.Config
	logger  logging.Logger
	closer  io.Closer
	metrics *metrics.Registry
}

func execute(ctx context.Context, args []string) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if cerr := a.shutdown(); err == nil {
		err = cerr
	}
	if err != nil {
		if a.logger != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("command failed", logging.Error(err))
		}
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "threatgraph",
		Short:         "Build a threat graph from network flows and threat intelligence",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			a.cfg = cfg

			logger, closer := logging.New(cfg.Logging, cmd.ErrOrStderr())
			a.logger = logger.With(logging.Component("threatgraph"))
			a.closer = closer
			a.metrics = metrics.NewRegistry()
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (YAML); environment variables override it")

	root.AddCommand(newRunCmd(a), newCheckCmd(a), newReplayCmd(a))
	return root
}

// shutdown writes the metrics textfile and releases the log file.
func (a *app) shutdown() error {
	var errs []error
	if a.cfg != nil {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runner wires a pipeline runner against the configured store. With live
// set it also wires the flow index and the portal and checks them first.
// The returned function closes the store.
func (a *app) runner(ctx context.Context, live bool) (*pipeline.Runner, func(), error) {
	store, err := a.cfg.OpenStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", a.cfg.Store.Backend, err)
	}
	closeStore := func() {
		if err := store.Close(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("failed to close store", logging.Error(err))
		}
	}

	checks := health.NewHealthChecker(a.cfg.Health.Timeout)
	pcfg := pipeline.Config{
		Store:   store,
		Checks:  checks,
		NoName:  a.cfg.Flow.NoName,
		Window:  a.cfg.Flow.Window,
		Clean:   a.cfg.Clean,
		Logger:  a.logger,
		Metrics: a.metrics,
	}

	if live {
		src, err := a.cfg.FlowSource(a.logger)
		if err != nil {
			closeStore()
			return nil, nil, fmt.Errorf("opensearch client: %w", err)
		}
		tip := a.cfg.TIPClient(a.logger)

		checks.RegisterCheck("opensearch", health.PingCheck(src.Ping))
		checks.RegisterCheck("tip", health.PingCheck(tip.Ping))

		pcfg.Flows = src
		pcfg.Lookup = tip
		pcfg.Index = a.cfg.OpenSearch.Index
		pcfg.ArchiveDir = a.cfg.Archive.Dir
		if pcfg.ArchiveDir != "" {
			checks.RegisterCheck("archive", health.WritableDirCheck(pcfg.ArchiveDir))
		}
	}
	checks.RegisterCheck("store", health.PingCheck(store.Ping))

	return pipeline.New(pcfg), closeStore, nil
}

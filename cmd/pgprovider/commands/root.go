// Package commands implements the pgprovider CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Konsultn-Engineering/pgprovider/internal/config"
	"github.com/Konsultn-Engineering/pgprovider/internal/logging"
	"github.com/Konsultn-Engineering/pgprovider/metrics"
	"github.com/Konsultn-Engineering/pgprovider/providers/postgres"
)

// globalOptions are the flags every command shares.
type globalOptions struct {
	configPath string
	provider   string
	logLevel    string
	metricsFile string
	fs          afero.Fs
}

// NewRootCommand assembles the command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &globalOptions{fs: afero.NewOsFs()}

	root := &cobra.Command{
		Use:           "pgprovider",
		Short:         "Run controlled queries against a PostgreSQL data provider",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the config file")
	root.PersistentFlags().StringVarP(&opts.provider, "provider", "p", "default", "Data provider name")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus counters to this textfile on exit")

	root.AddCommand(newQueryCommand(opts))
	root.AddCommand(newCallCommand(opts))
	root.AddCommand(newLoginCommand(opts))
	root.AddCommand(newCompleteCommand(opts))
	return root
}

// session bundles what a command needs to talk to the database.
type session struct {
	provider *postgres.Provider
	flush    func() error
	logger   *slog.Logger
}

func (s *session) Close() {
	s.provider.Close()
	if err := s.flush(); err != nil {
		s.logger.Warn("write metrics", "error", err)
	}
}

// newSink returns the counter sink of a command run and the function that
// publishes it once the run is over. Without a path the counters are only
// logged at debug level.
func newSink(path string, logger *slog.Logger) (metrics.Sink, func() error) {
	if path == "" {
		counters := metrics.NewMemory()
		return counters, func() error {
			logger.Debug("counters", "values", counters.Snapshot())
			return nil
		}
	}
	reg := prometheus.NewRegistry()
	return metrics.NewPrometheus(reg), func() error {
		return prometheus.WriteToTextfile(path, reg)
	}
}

func (o *globalOptions) open(ctx context.Context) (*session, error) {
	cfg, err := config.Load(o.fs, o.configPath)
	if err != nil {
		return nil, err
	}
	pc, err := cfg.Provider(o.provider)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger := logging.New(level, cfg.Log.Format)
	sink, flush := newSink(o.metricsFile, logger)

	p, err := postgres.New(ctx, o.provider, pc,
		postgres.WithLogger(logger),
		postgres.WithMetrics(sink),
		postgres.WithDebug(cfg.Debug.Need),
		postgres.WithExtendedInfo(cfg.Debug.MsgsExtendedInfo),
		postgres.WithApplication(cfg.ApplicationName, cfg.InstanceName),
	)
	if err != nil {
		return nil, fmt.Errorf("open provider %s: %w", o.provider, err)
	}
	return &session{provider: p, flush: flush, logger: logger}, nil
}

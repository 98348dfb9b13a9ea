package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ankittk/releasekit/internal/config"
	"github.com/ankittk/releasekit/internal/history"
	"github.com/ankittk/releasekit/internal/otel"
	"github.com/spf13/cobra"
)

type stateKey struct{}

// state is what PersistentPreRunE builds for every subcommand.
type state struct {
	settings    *config.Settings
	log         *slog.Logger
	queueDir    string
	metrics     *otel.Metrics
	provider    *otel.Provider
	metricsFile string
	history     *history.Store
}

func stateFrom(ctx context.Context) *state {
	if st, ok := ctx.Value(stateKey{}).(*state); ok {
		return st
	}
	panic("releasekit state missing from context")
}

// close flushes metrics and releases the history database.
func (st *state) close(ctx context.Context) {
	if st.history != nil {
		_ = st.history.Close()
	}
	if st.provider == nil {
		return
	}
	if err := st.provider.WriteTextfile(st.metricsFile); err != nil {
		st.log.Warn("could not write metrics textfile", "path", st.metricsFile, "err", err)
	}
	_ = st.provider.Shutdown(ctx)
}

// withState hands fn the per-run state and closes it when fn returns, including on error.
func withState(fn func(cmd *cobra.Command, st *state, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st := stateFrom(cmd.Context())
		defer st.close(cmd.Context())
		return fn(cmd, st, args)
	}
}

func NewRootCmd(version string) *cobra.Command {
	var (
		configPath  string
		logLevel    string
		queueDir    string
		metricsFile string
		historyDB   string
	)

	cmd := &cobra.Command{
		Use:          "releasekit",
		Short:        "releasekit: next-version resolution and release queue for CI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd, logLevel)
			if err != nil {
				return err
			}
			st := &state{
				settings:    settings,
				log:         logger,
				queueDir:    config.ResolveQueueDir(queueDir, settings),
				metricsFile: config.FirstNonEmpty(metricsFile, os.Getenv("RELEASEKIT_METRICS_FILE")),
			}
			if st.metricsFile != "" {
				p, err := otel.InitMeterProvider(cmd.Context(), "releasekit")
				if err != nil {
					logger.Warn("metrics init failed, continuing without metrics", "err", err)
				} else if m, err := otel.NewMetrics(p.Meter()); err != nil {
					logger.Warn("metrics init failed, continuing without metrics", "err", err)
				} else {
					st.provider, st.metrics = p, m
				}
			}
			if dbPath := config.FirstNonEmpty(historyDB, settings.HistoryDB); dbPath != "" {
				h, err := history.Open(dbPath)
				if err != nil {
					st.close(cmd.Context())
					return fmt.Errorf("open history: %w", err)
				}
				st.history = h
			}
			ctx := config.WithSettings(cmd.Context(), settings)
			cmd.SetContext(context.WithValue(ctx, stateKey{}, st))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Policy file (default: "+config.DefaultPath+" if present)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (env: RELEASEKIT_LOG_LEVEL; RUNNER_DEBUG=1 selects debug)")
	cmd.PersistentFlags().StringVar(&queueDir, "queue-dir", "", "Release queue directory (default: "+config.DefaultQueueDir+", env: RELEASEKIT_QUEUE_DIR)")
	cmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus textfile metrics here on exit (env: RELEASEKIT_METRICS_FILE)")
	cmd.PersistentFlags().StringVar(&historyDB, "history-db", "", "SQLite release history ledger (default: history_db from the policy file)")

	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newQueueCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newInitCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}

func loadSettings(path string) (*config.Settings, error) {
	if path == "" {
		return config.Load(config.DefaultPath)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return config.Load(path)
}

func newLogger(cmd *cobra.Command, level string) (*slog.Logger, error) {
	level = config.FirstNonEmpty(level, os.Getenv("RELEASEKIT_LOG_LEVEL"))
	if level == "" && os.Getenv("RUNNER_DEBUG") == "1" {
		level = "debug"
	}
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl})), nil
}

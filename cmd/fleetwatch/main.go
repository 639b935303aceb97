package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/miradorstack/fleetwatch/internal/config"
	"github.com/miradorstack/fleetwatch/internal/engine"
	"github.com/miradorstack/fleetwatch/internal/metrics"
	"github.com/miradorstack/fleetwatch/internal/normalize"
	"github.com/miradorstack/fleetwatch/internal/report"
	"github.com/miradorstack/fleetwatch/internal/utils"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

// errInputMissing is returned before any processing when the export is absent.
var errInputMissing = errors.New("input file not found")

type analyzeFlags struct {
	configPath      string
	input           string
	output          string
	strategy        string
	chunkSize       int
	metricsTextfile string
	logLevel        string
	logJSON         bool
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "fleetwatch",
		Short:         "Detect overcurrent, overload and anomalous current events in fleet inverter exports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(newAnalyzeCmd(stdout, stderr), newVersionCmd(stdout))
	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fleetwatch version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "fleetwatch %s\n", version)
		},
	}
}

func newAnalyzeCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run all detectors over one sensor export",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				fmt.Fprintf(stderr, "error: %v\n", err)
				return err
			}
			applyFlags(cmd, &flags, cfg)
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(stderr, "error: %v\n", err)
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, stderr)
			if err := runAnalyze(ctx, cfg, logger, stdout); err != nil {
				fmt.Fprintf(stderr, "error: %v\n", err)
				return err
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "Path to configuration file (defaults to $FLEETWATCH_CONFIG)")
	f.StringVarP(&flags.input, "input", "i", "", "Path to the sensor export CSV")
	f.StringVarP(&flags.output, "output", "o", "", "Path of the result artifact")
	f.StringVar(&flags.strategy, "strategy", "", "Evaluation strategy: auto, streaming or in-memory")
	f.IntVar(&flags.chunkSize, "chunk-size", 0, "Raw rows normalized per streaming chunk")
	f.StringVar(&flags.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this textfile after the run")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	f.BoolVar(&flags.logJSON, "log-json", false, "Emit JSON logs")
	return cmd
}

// applyFlags lets explicitly set flags win over file and environment settings.
func applyFlags(cmd *cobra.Command, flags *analyzeFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("input") {
		cfg.Input.Path = flags.input
	}
	if changed("output") {
		cfg.Output.Path = flags.output
	}
	if changed("strategy") {
		cfg.Engine.Strategy = flags.strategy
	}
	if changed("chunk-size") {
		cfg.Engine.ChunkSize = flags.chunkSize
	}
	if changed("metrics-textfile") {
		cfg.Metrics.Textfile = flags.metricsTextfile
	}
	if changed("log-level") {
		cfg.Logging.Level = flags.logLevel
	}
	if changed("log-json") {
		cfg.Logging.JSON = flags.logJSON
	}
}

func runAnalyze(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	strategy, err := engine.ParseStrategy(cfg.Engine.Strategy)
	if err != nil {
		return err
	}
	delimiter, err := cfg.Input.DelimiterRune()
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(cfg.Input.Path); statErr != nil {
		if errors.Is(statErr, fs.ErrNotExist) {
			return fmt.Errorf("%w: '%s'", errInputMissing, cfg.Input.Path)
		}
		return fmt.Errorf("stat input: %w", statErr)
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if cfg.Metrics.Textfile != "" {
		defer func() {
			if werr := metrics.WriteTextfile(cfg.Metrics.Textfile, reg); werr != nil {
				logger.Warn("failed to write metrics textfile", slog.String("path", cfg.Metrics.Textfile), slog.Any("error", werr))
			}
		}()
	}

	fmt.Fprintf(stdout, ">>> Processing '%s'...\n", cfg.Input.Path)

	stream := normalize.Scan(
		normalize.FileSource{Path: cfg.Input.Path},
		normalize.WithChunkSize(cfg.Engine.ChunkSize),
		normalize.WithDelimiter(delimiter),
	)
	pipeline := engine.NewPipeline(
		logger,
		engine.Options{
			Strategy: strategy,
			Limits: engine.Limits{
				MaxBufferedRows: cfg.Engine.MaxBufferedRows,
				MaxGroups:       cfg.Engine.MaxGroups,
			},
		},
		report.NewFileWriter(cfg.Output.Path),
		nil, nil, nil,
	)

	res, err := pipeline.Run(ctx, stream)
	if err != nil {
		return err
	}
	return report.PrintSummary(stdout, res, cfg.Output.Path)
}

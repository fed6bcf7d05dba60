package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"FinCast/internal/di"
	"FinCast/internal/usecase"
	"FinCast/pkg/cache"
	"FinCast/pkg/config"
	applogger "FinCast/pkg/logger"
)

var runCmd = &cobra.Command{
	Use:   "run [SYMBOL...]",
	Short: "Run one forecast in-process and write every configured sink",
	Long: `Run loads history from the configured source, forecasts each instrument
and writes the results to the output directory (plus ClickHouse, Kafka, the
XLSX report or the webhook when they are configured). It does not need a
running service.`,
	RunE: runForecast,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runForecast(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return err
	}
	// Runs started from the CLI are never throttled.
	cfg.Server.RunsPerMinute = 0

	runner, closeFn, err := buildRunner(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	symbols := make([]string, 0, len(args))
	for _, a := range args {
		symbols = append(symbols, strings.ToUpper(a))
	}

	summary, err := runner.RunOnce(ctx, symbols)
	if summary == nil {
		return err
	}
	if perr := printSummary(cmd.OutOrStdout(), summary); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("run %s finished with sink errors: %w", summary.RunID, err)
	}
	return nil
}

// buildRunner wires the same runner the service uses, minus transports.
func buildRunner(cfg *config.Config) (*usecase.ForecastRunner, func(), error) {
	producer, err := di.ProvideKafkaProducer(cfg)
	if err != nil {
		return nil, nil, err
	}
	l, err := di.ProvideLogger(cfg, producer)
	if err != nil {
		return nil, nil, err
	}
	var closers []func() error
	closeFn := func() {
		l.RemoveCollector()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				l.Warn("close", applogger.Error(err))
			}
		}
	}
	if producer != nil {
		closers = append(closers, producer.Close)
	}

	rec := di.ProvideMetrics()
	ch, err := di.ProvideClickHouseClient(cfg, l)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	if ch != nil {
		closers = append(closers, ch.Close)
	}
	rc, err := di.ProvideRedisCache(cfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	var c cache.Service = di.ProvideCache(cfg, rc)
	closers = append(closers, c.Close)

	fc, err := di.ProvideForecastConfig(cfg)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	pipeline, err := di.ProvidePipeline(fc, l, rec)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	source, err := di.ProvideSeriesSource(cfg, fc, di.ProvideBarStore(cfg, ch, l), l)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	store := di.ProvideForecastStore(cfg, c, ch, l)
	sinks := di.ProvideSinks(cfg, store, ch, producer, l)
	return di.ProvideForecastRunner(cfg, pipeline, fc, source, sinks, c, rec, nil, l), closeFn, nil
}

package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/forecast"
	"FinCast/internal/handler/api"
	"FinCast/internal/handler/ws"
	mid "FinCast/internal/middleware"
	internalrepo "FinCast/internal/repository"
	servicemetrics "FinCast/internal/service/metrics"
	"FinCast/internal/usecase"
	"FinCast/pkg/cache"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/metrics"
	"FinCast/pkg/queue"
	"FinCast/pkg/server"
)

// Optional infrastructure providers return nil when their section is
// disabled; consumers check for nil rather than for a flag.

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithBreaker(cfg.Kafka.Breaker.MaxFailures, cfg.Kafka.Breaker.OpenTimeout),
		pkgkafka.WithRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. With Kafka on, repeated
// warnings and errors are aggregated onto the logs topic.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates the Prometheus recorder on the default registry.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New(nil)
}

// ProvideClickHouseClient connects and ensures the schema, or returns nil
// when ClickHouse is off.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(context.Background(),
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, 5*time.Minute),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.EnsureSchema(ctx, cfg.ClickHouse.Database); err != nil {
		if cerr := client.Close(); cerr != nil {
			l.Warn("clickhouse close after schema failure", applogger.Error(cerr))
		}
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready", applogger.String("database", cfg.ClickHouse.Database))
	return client, nil
}

// ProvideRedisCache connects to Redis, or returns nil when Redis is off.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process cache over Redis, falling back to
// memory only when Redis is off.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Redis.MemoryEntries))
	}
	return cache.NewLayeredCache(rc, cache.WithLayeredMemory(cfg.Redis.MemoryEntries, cfg.Redis.MemoryTTL))
}

// ProvideForecastConfig maps the YAML section onto the pipeline config.
func ProvideForecastConfig(cfg *config.Config) (forecast.Config, error) {
	fc := forecast.Config{
		WindowLength:     cfg.Forecast.WindowLength,
		Horizon:          cfg.Forecast.Horizon,
		SignalColumns:    append([]string(nil), cfg.Forecast.SignalColumns...),
		TargetColumn:     cfg.Forecast.TargetColumn,
		DisplayPrecision: cfg.Forecast.DisplayPrecision,
		Workers:          cfg.Forecast.Workers,
		Evaluation:       forecast.EvaluationMode(cfg.Forecast.Evaluation),
		Candidates:       make([]forecast.ModelSpec, 0, len(cfg.Forecast.Candidates)),
	}
	for _, m := range cfg.Forecast.Candidates {
		fc.Candidates = append(fc.Candidates, forecast.ModelSpec{
			Name:           m.Name,
			Kind:           forecast.ModelKind(m.Kind),
			Alpha:          m.Alpha,
			L1Ratio:        m.L1Ratio,
			MaxIter:        m.MaxIter,
			Tol:            m.Tol,
			NEstimators:    m.NEstimators,
			MaxDepth:       m.MaxDepth,
			LearningRate:   m.LearningRate,
			MinChildWeight: m.MinChildWeight,
			Subsample:      m.Subsample,
			Seed:           m.Seed,
		})
	}
	if err := fc.Validate(); err != nil {
		return forecast.Config{}, err
	}
	return fc, nil
}

// ProvidePipeline builds the forecasting pipeline with stage metrics.
func ProvidePipeline(fc forecast.Config, l *applogger.Logger, m *metrics.Recorder) (*forecast.Pipeline, error) {
	p, err := forecast.NewPipeline(fc, l, forecast.WithObserver(servicemetrics.NewPipelineObserver(m)))
	if err != nil {
		return nil, fmt.Errorf("forecast pipeline: %w", err)
	}
	return p, nil
}

// ProvideBarStore reads and writes bars in ClickHouse, or returns nil when
// ClickHouse is off.
func ProvideBarStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) *internalrepo.CHBarStore {
	if ch == nil {
		return nil
	}
	s := internalrepo.NewCHBarStore(ch.DB(), cfg.ClickHouse.Database, domrepo.NormalizeInterval(cfg.Source.Interval))
	s.SetLogger(l)
	return s
}

// ProvideSeriesSource selects where instrument history is read from.
func ProvideSeriesSource(cfg *config.Config, fc forecast.Config, bars *internalrepo.CHBarStore, l *applogger.Logger) (domrepo.SeriesSource, error) {
	switch cfg.Source.Type {
	case "clickhouse":
		if bars == nil {
			return nil, fmt.Errorf("source clickhouse: clickhouse is disabled")
		}
		return bars, nil
	default:
		return internalrepo.NewJSONBarStore(cfg.Source.JSONDir, fc.WindowLength, l), nil
	}
}

// ProvideForecastStore keeps the latest forecasts in the cache, falling
// back to ClickHouse on a miss when it is available.
func ProvideForecastStore(cfg *config.Config, c cache.Service, ch *pkgch.Client, l *applogger.Logger) *internalrepo.CachedForecastStore {
	var fallback domrepo.ForecastReader
	if ch != nil {
		fallback = chForecastStore(cfg, ch, l)
	}
	return internalrepo.NewCachedForecastStore(c, cfg.Redis.TTL, fallback, l)
}

func chForecastStore(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) *internalrepo.CHForecastStore {
	s := internalrepo.NewCHForecastStore(ch.DB(), cfg.ClickHouse.Database)
	s.SetLogger(l)
	return s
}

// ProvideSinks lists every destination a finished run is written to.
func ProvideSinks(
	cfg *config.Config,
	store *internalrepo.CachedForecastStore,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	l *applogger.Logger,
) []domrepo.ForecastSink {
	sinks := []domrepo.ForecastSink{
		internalrepo.NewJSONForecastSink(cfg.Output.Dir, cfg.Output.SaveModels, l),
		store,
	}
	if ch != nil {
		sinks = append(sinks, chForecastStore(cfg, ch, l))
	}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaForecastPublisher(producer, cfg.Kafka.ForecastsTopic, cfg.Kafka.RunsTopic))
	}
	if cfg.Output.XLSXReport {
		sinks = append(sinks, internalrepo.NewXLSXReportSink(cfg.Output.Dir))
	}
	if cfg.Output.WebhookURL != "" {
		sinks = append(sinks, internalrepo.NewWebhookSink(cfg.Output.WebhookURL, cfg.Output.WebhookTimeout, cfg.Output.WebhookAttempts, l))
	}
	return sinks
}

// ProvideHub creates the websocket fan-out for finished forecasts.
func ProvideHub(l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l)
}

// ProvideForecastRunner wires the pipeline to its source, sinks and lock.
// hub may be nil for one-shot runs.
func ProvideForecastRunner(
	cfg *config.Config,
	pipeline *forecast.Pipeline,
	fc forecast.Config,
	source domrepo.SeriesSource,
	sinks []domrepo.ForecastSink,
	c cache.Service,
	m *metrics.Recorder,
	hub *ws.Hub,
	l *applogger.Logger,
) *usecase.ForecastRunner {
	var b usecase.Broadcaster
	if hub != nil {
		b = hub
	}
	return usecase.NewForecastRunner(usecase.RunnerConfig{
		Symbols:       cfg.Source.Symbols,
		Observations:  fc.Observations(),
		LockTTL:       cfg.Redis.LockTTL,
		RunsPerMinute: cfg.Server.RunsPerMinute,
	}, pipeline, source, sinks, c, m, b, l)
}

// ProvideScheduler runs the forecast on the configured interval.
func ProvideScheduler(cfg *config.Config, runner *usecase.ForecastRunner, l *applogger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(runner, cfg.Forecast.Interval, cfg.Forecast.RunOnStart, l)
}

// ProvideBarIngest validates and stores streamed bars, or returns nil when
// there is nowhere to store them.
func ProvideBarIngest(cfg *config.Config, bars *internalrepo.CHBarStore, m *metrics.Recorder, l *applogger.Logger) *mid.BarIngest {
	if bars == nil || !cfg.Kafka.Enabled {
		return nil
	}
	return mid.NewBarIngest(bars, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(cfg.Kafka.Consumer.BufferSize),
		mid.WithLogger(l),
	)
}

// ProvideRunRequestHandler serves run requests from Kafka or the queue.
func ProvideRunRequestHandler(cfg *config.Config, runner *usecase.ForecastRunner, m *metrics.Recorder, l *applogger.Logger) *usecase.RunRequestHandler {
	return usecase.NewRunRequestHandler(cfg.Kafka.RequestsTopic, runner, m, l)
}

// ProvideKafkaConsumer subscribes to run requests and, when bars can be
// stored, to the bars topic. It returns nil when Kafka is off.
func ProvideKafkaConsumer(
	cfg *config.Config,
	runs *usecase.RunRequestHandler,
	ingest *mid.BarIngest,
	m *metrics.Recorder,
	l *applogger.Logger,
) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(runs)
	if ingest != nil {
		consumer.RegisterHandler(usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, ingest, m))
	}
	return consumer, nil
}

// ProvideQueue carries run requests over Redis when Kafka is off. It
// returns nil otherwise.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, runs *usecase.RunRequestHandler, l *applogger.Logger) *queue.RedisQueue {
	if rc == nil || cfg.Kafka.Enabled {
		return nil
	}
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
	q.RegisterJob(runs)
	return q
}

// ProvideHTTPServer exposes the forecast API, the websocket feed and
// /metrics.
func ProvideHTTPServer(
	cfg *config.Config,
	store *internalrepo.CachedForecastStore,
	runner *usecase.ForecastRunner,
	hub *ws.Hub,
	ch *pkgch.Client,
	rc *cache.RedisCache,
	l *applogger.Logger,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
	}
	if cfg.Server.CORS {
		opts = append(opts, xhttp.WithCORS(cfg.Server.CORSOrigins...))
	} else {
		opts = append(opts, xhttp.WithoutCORS())
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, prometheus.DefaultGatherer))
	} else {
		opts = append(opts, xhttp.WithMetrics("", nil))
	}
	if ch != nil {
		opts = append(opts, xhttp.WithReadinessCheck("clickhouse", ch.Health))
	}
	if rc != nil {
		opts = append(opts, xhttp.WithReadinessCheck("redis", func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}))
	}
	handlers := []xhttp.Handler{
		api.NewForecastsHandler(l, store, store, runner),
		hub,
	}
	return xhttp.NewServer(handlers, opts...)
}

// ProvideApp assembles the application lifecycle.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	hub *ws.Hub,
	scheduler *usecase.Scheduler,
	ingest *mid.BarIngest,
	consumer *pkgkafka.Consumer,
	q *queue.RedisQueue,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	return server.New(cfg, l, server.Components{
		HTTP:       httpServer,
		Hub:        hub,
		Scheduler:  scheduler,
		Ingest:     ingest,
		Consumer:   consumer,
		Queue:      q,
		Producer:   producer,
		ClickHouse: ch,
		Cache:      c,
	})
}

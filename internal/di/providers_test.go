package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/forecast"
	internalrepo "FinCast/internal/repository"
	"FinCast/pkg/cache"
	"FinCast/pkg/config"
	applogger "FinCast/pkg/logger"
)

func TestProvideForecastConfigMapsCandidates(t *testing.T) {
	cfg := config.Default()
	fc, err := ProvideForecastConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, 819, fc.WindowLength)
	assert.Equal(t, 39, fc.Horizon)
	assert.Equal(t, forecast.EvalTestLabels, fc.Evaluation)
	require.Len(t, fc.Candidates, 3)
	assert.Equal(t, forecast.KindElasticNet, fc.Candidates[1].Kind)
	require.NotNil(t, fc.Candidates[1].L1Ratio)
	assert.Equal(t, 0.2, *fc.Candidates[1].L1Ratio)
	assert.Nil(t, fc.Candidates[1].Tol)
	assert.Equal(t, forecast.KindGradientBoostedTrees, fc.Candidates[2].Kind)
	assert.Equal(t, int64(100), fc.Candidates[2].Seed)
}

func TestProvideForecastConfigKeepsExplicitZero(t *testing.T) {
	cfg := config.Default()
	zero := 0.0
	cfg.Forecast.Candidates = []config.ModelConfig{{Name: "ridge", Kind: "elastic_net", L1Ratio: &zero}}
	fc, err := ProvideForecastConfig(cfg)
	require.NoError(t, err)

	est, err := fc.Candidates[0].New()
	require.NoError(t, err)
	enet, ok := est.(*forecast.ElasticNetModel)
	require.True(t, ok)
	assert.Equal(t, 0.0, enet.L1Ratio)
}

func TestProvideForecastConfigRejectsBadEvaluation(t *testing.T) {
	cfg := config.Default()
	cfg.Forecast.Evaluation = "later"
	_, err := ProvideForecastConfig(cfg)
	require.Error(t, err)
}

func TestOptionalInfrastructureIsNilWhenDisabled(t *testing.T) {
	cfg := config.Default()
	l := applogger.Nop()

	producer, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, producer)

	ch, err := ProvideClickHouseClient(cfg, l)
	require.NoError(t, err)
	assert.Nil(t, ch)

	rc, err := ProvideRedisCache(cfg)
	require.NoError(t, err)
	assert.Nil(t, rc)

	assert.Nil(t, ProvideBarStore(cfg, nil, l))
	assert.Nil(t, ProvideBarIngest(cfg, nil, nil, l))
	assert.Nil(t, ProvideQueue(cfg, nil, nil, l))

	consumer, err := ProvideKafkaConsumer(cfg, nil, nil, nil, l)
	require.NoError(t, err)
	assert.Nil(t, consumer)

	_, ok := ProvideCache(config.Default(), nil).(*cache.MemoryCache)
	assert.True(t, ok, "memory cache without redis")
}

func TestProvideSeriesSource(t *testing.T) {
	cfg := config.Default()
	fc, err := ProvideForecastConfig(cfg)
	require.NoError(t, err)

	src, err := ProvideSeriesSource(cfg, fc, nil, applogger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &internalrepo.JSONBarStore{}, src)

	cfg.Source.Type = "clickhouse"
	_, err = ProvideSeriesSource(cfg, fc, nil, applogger.Nop())
	require.Error(t, err)
}

func TestProvideSinksFollowsConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	l := applogger.Nop()
	store := ProvideForecastStore(cfg, cache.NewMemoryCache(), nil, l)

	sinks := ProvideSinks(cfg, store, nil, nil, l)
	require.Len(t, sinks, 2)
	assert.IsType(t, &internalrepo.JSONForecastSink{}, sinks[0])
	assert.Same(t, store, sinks[1])

	cfg.Output.XLSXReport = true
	cfg.Output.WebhookURL = "http://localhost:9/hook"
	sinks = ProvideSinks(cfg, store, nil, nil, l)
	require.Len(t, sinks, 4)
	assert.IsType(t, &internalrepo.XLSXReportSink{}, sinks[2])
	assert.IsType(t, &internalrepo.WebhookSink{}, sinks[3])
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 819, c.Forecast.WindowLength)
	assert.Equal(t, 39, c.Forecast.Horizon)
	assert.Equal(t, []string{"vwap"}, c.Forecast.SignalColumns)
	assert.Equal(t, "close", c.Forecast.TargetColumn)
	assert.Equal(t, 2, c.Forecast.DisplayPrecision)
	assert.Equal(t, "test_labels", c.Forecast.Evaluation)
	require.Len(t, c.Forecast.Candidates, 3)
	assert.Equal(t, "gradient_boosted_trees", c.Forecast.Candidates[2].Kind)
	assert.Equal(t, 1000, c.Forecast.Candidates[2].NEstimators)
	assert.Equal(t, "json", c.Source.Type)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
}

func TestParseKeepsExplicitValues(t *testing.T) {
	c, err := Parse([]byte(`
environment: prod
forecast:
  window_length: 100
  horizon: 10
  signal_columns: [vwap, close]
  candidate_models:
    - kind: constant
`))
	require.NoError(t, err)
	assert.Equal(t, 100, c.Forecast.WindowLength)
	assert.Equal(t, []string{"vwap", "close"}, c.Forecast.SignalColumns)
	require.Len(t, c.Forecast.Candidates, 1)
	assert.Equal(t, "constant", c.Forecast.Candidates[0].Kind)
}

func TestParseKeepsExplicitZeroHyperParameters(t *testing.T) {
	c, err := Parse([]byte(`
forecast:
  candidate_models:
    - name: ridge
      kind: elastic_net
      alpha: 0.2
      l1_ratio: 0
    - kind: gradient_boosted_trees
      min_child_weight: 0
`))
	require.NoError(t, err)
	require.Len(t, c.Forecast.Candidates, 2)
	ridge := c.Forecast.Candidates[0]
	require.NotNil(t, ridge.L1Ratio)
	assert.Equal(t, 0.0, *ridge.L1Ratio)
	assert.Nil(t, ridge.Tol)
	require.NotNil(t, c.Forecast.Candidates[1].MinChildWeight)
	assert.Nil(t, c.Forecast.Candidates[1].LearningRate)

	_, err = Parse([]byte(`
forecast:
  candidate_models:
    - kind: gradient_boosted_trees
      learning_rate: 0
`))
	require.Error(t, err)
}

func TestParseKeepsExplicitFalse(t *testing.T) {
	c, err := Parse([]byte(`
server:
  cors: false
  cors_origins: [https://dash.example.com]
metrics:
  enabled: false
forecast:
  run_on_start: false
`))
	require.NoError(t, err)

	assert.False(t, c.Server.CORS)
	assert.Equal(t, []string{"https://dash.example.com"}, c.Server.CORSOrigins)
	assert.False(t, c.Metrics.Enabled)
	assert.False(t, c.Forecast.RunOnStart)
	assert.Equal(t, "0.0.0.0", c.Server.Host)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"unknown model":      "forecast:\n  candidate_models:\n    - kind: svm\n",
		"negative horizon":   "forecast:\n  horizon: -3\n",
		"horizon too long":   "forecast:\n  window_length: 50\n  horizon: 30\n",
		"bad source":         "source:\n  type: s3\n",
		"clickhouse missing": "source:\n  type: clickhouse\n",
		"bad evaluation":     "forecast:\n  evaluation: later\n",
		"kafka no brokers":   "kafka:\n  enabled: true\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FINCAST_SYMBOLS", "AAPL, MSFT,,TSLA")
	t.Setenv("FINCAST_HORIZON", "12")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c := Default()
	require.NoError(t, c.ApplyEnv())
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA"}, c.Source.Symbols)
	assert.Equal(t, 12, c.Forecast.Horizon)
	assert.Equal(t, 819, c.Forecast.WindowLength)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.False(t, c.Redis.Enabled)
}

func TestApplyEnvRejectsBadNumber(t *testing.T) {
	t.Setenv("FINCAST_WINDOW", "many")
	c := Default()
	assert.Error(t, c.ApplyEnv())
}

func TestLoadExampleFile(t *testing.T) {
	path := filepath.Join("..", "..", "configs", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Skip("example config not present")
	}
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "development", c.Environment)
	assert.Len(t, c.Forecast.Candidates, 3)
}

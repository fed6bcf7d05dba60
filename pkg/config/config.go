package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"FinCast/pkg/logger"
)

type Config struct {
	Environment string        `yaml:"environment" default:"development" validate:"required"`
	Log         logger.Config `yaml:"log"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		RunsPerMinute   int           `yaml:"runs_per_minute" default:"6" validate:"gte=0"`
		CORS            bool          `yaml:"cors" default:"true"`
		// CORSOrigins restricts cross-origin callers; empty allows any.
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Forecast ForecastConfig `yaml:"forecast"`
	Source   struct {
		// Type selects where instrument history comes from.
		Type     string   `yaml:"type" default:"json" validate:"oneof=json clickhouse"`
		JSONDir  string   `yaml:"json_dir" default:"data/raw"`
		Interval string   `yaml:"interval" default:"10m" validate:"oneof=1m 5m 10m 1h"`
		Symbols  []string `yaml:"symbols"`
	} `yaml:"source"`
	Output struct {
		Dir        string `yaml:"dir" default:"data/predictions"`
		SaveModels bool   `yaml:"save_models" default:"true"`
		XLSXReport bool   `yaml:"xlsx_report"`
		// WebhookURL receives a JSON summary after every run when set.
		WebhookURL      string        `yaml:"webhook_url" validate:"omitempty,url"`
		WebhookTimeout  time.Duration `yaml:"webhook_timeout" default:"5s"`
		WebhookAttempts int           `yaml:"webhook_attempts" default:"3" validate:"gte=1"`
	} `yaml:"output"`
	Kafka struct {
		Enabled        bool     `yaml:"enabled"`
		Brokers        []string `yaml:"brokers" validate:"required_if=Enabled true"`
		BarsTopic      string   `yaml:"bars_topic" default:"fincast.bars"`
		ForecastsTopic string   `yaml:"forecasts_topic" default:"fincast.forecasts"`
		RunsTopic      string   `yaml:"runs_topic" default:"fincast.runs"`
		RequestsTopic  string   `yaml:"requests_topic" default:"fincast.run-requests"`
		LogsTopic      string   `yaml:"logs_topic" default:"fincast.logs"`
		RequiredAcks   int      `yaml:"required_acks" default:"-1"`
		Compression    string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"fincast"`
			Workers    int           `yaml:"workers" default:"4" validate:"gt=0"`
			BufferSize int           `yaml:"buffer_size" default:"1000"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
		Breaker struct {
			MaxFailures uint32        `yaml:"max_failures" default:"5"`
			OpenTimeout time.Duration `yaml:"open_timeout" default:"30s"`
		} `yaml:"breaker"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"fincast"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10" validate:"gte=0"`
		MaxIdleConns     int           `yaml:"max_idle_conns" default:"5" validate:"gte=0"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		Prefix   string        `yaml:"prefix" default:"fincast"`
		TTL      time.Duration `yaml:"ttl" default:"24h"`
		LockTTL  time.Duration `yaml:"lock_ttl" default:"30m"`
		PoolSize     int `yaml:"pool_size" default:"10" validate:"gte=0"`
		MinIdleConns int `yaml:"min_idle_conns" default:"2" validate:"gte=0"`
		// In-process layer in front of Redis, or the whole cache without it.
		MemoryEntries int           `yaml:"memory_entries" default:"10000" validate:"gt=0"`
		MemoryTTL     time.Duration `yaml:"memory_ttl" default:"1m"`
	} `yaml:"redis"`
	// Queue carries run requests over Redis when Kafka is disabled.
	Queue struct {
		Workers    int           `yaml:"workers" default:"1" validate:"gt=0"`
		RetryLimit int           `yaml:"retry_limit" default:"3" validate:"gte=0"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"10s"`
		KeyPrefix  string        `yaml:"key_prefix" default:"fincast:queue"`
	} `yaml:"queue"`
}

// ForecastConfig configures the forecasting pipeline.
type ForecastConfig struct {
	WindowLength     int           `yaml:"window_length" default:"819" validate:"gt=0"`
	Horizon          int           `yaml:"horizon" default:"39" validate:"gt=0,ltefield=WindowLength"`
	SignalColumns    []string      `yaml:"signal_columns" validate:"required,min=1,dive,required"`
	TargetColumn     string        `yaml:"target_column" default:"close" validate:"required"`
	DisplayPrecision int           `yaml:"display_precision" default:"2" validate:"gte=0,lte=10"`
	Workers          int           `yaml:"workers" default:"4" validate:"gt=0"`
	Evaluation       string        `yaml:"evaluation" default:"test_labels" validate:"oneof=test_labels reserved_train"`
	Interval         time.Duration `yaml:"interval" default:"24h"`
	RunOnStart       bool          `yaml:"run_on_start" default:"true"`
	Candidates       []ModelConfig `yaml:"candidate_models" validate:"required,min=1,dive"`
}

// ModelConfig describes one candidate model. Omitted float parameters take
// the model's default; an explicit 0 is kept (l1_ratio 0 is ridge).
type ModelConfig struct {
	Name           string   `yaml:"name"`
	Kind           string   `yaml:"kind" validate:"required,oneof=linear elastic_net gradient_boosted_trees constant"`
	Alpha          *float64 `yaml:"alpha" validate:"omitnil,gte=0"`
	L1Ratio        *float64 `yaml:"l1_ratio" validate:"omitnil,gte=0,lte=1"`
	MaxIter        int      `yaml:"max_iter" validate:"gte=0"`
	Tol            *float64 `yaml:"tol" validate:"omitnil,gt=0"`
	NEstimators    int      `yaml:"n_estimators" validate:"gte=0"`
	MaxDepth       int      `yaml:"max_depth" validate:"gte=0"`
	LearningRate   *float64 `yaml:"learning_rate" validate:"omitnil,gt=0"`
	MinChildWeight *float64 `yaml:"min_child_weight" validate:"omitnil,gte=0"`
	Subsample      *float64 `yaml:"subsample" validate:"omitnil,gt=0,lte=1"`
	Seed           int64    `yaml:"seed"`
}

func floatPtr(v float64) *float64 { return &v }

// SetDefaults fills slice defaults that struct tags cannot express.
func (f *ForecastConfig) SetDefaults() {
	if defaults.CanUpdate(f.SignalColumns) {
		f.SignalColumns = []string{"vwap"}
	}
	if defaults.CanUpdate(f.Candidates) {
		f.Candidates = []ModelConfig{
			{Name: "linear", Kind: "linear"},
			{Name: "elastic_net", Kind: "elastic_net", Alpha: floatPtr(0.2), L1Ratio: floatPtr(0.2)},
			{Name: "xgb", Kind: "gradient_boosted_trees", NEstimators: 1000, MaxDepth: 5, LearningRate: floatPtr(0.1), Seed: 100},
		}
	}
}

var validate = validator.New()

// Default returns a configuration populated from struct defaults only.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, decodes YAML over them and validates the result.
func Parse(b []byte) (*Config, error) {
	// Defaults go in first so an explicit false in YAML survives.
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// envOverrides lists the environment variables ApplyEnv honours. Unset
// variables leave the pointer nil.
type envOverrides struct {
	Environment *string  `envconfig:"FINCAST_ENV"`
	Symbols     []string `envconfig:"FINCAST_SYMBOLS"`
	Source      *string  `envconfig:"FINCAST_SOURCE"`
	JSONDir     *string  `envconfig:"FINCAST_JSON_DIR"`
	OutputDir   *string  `envconfig:"FINCAST_OUTPUT_DIR"`
	LogLevel    *string  `envconfig:"FINCAST_LOG_LEVEL"`
	Window      *int     `envconfig:"FINCAST_WINDOW"`
	Horizon     *int     `envconfig:"FINCAST_HORIZON"`
	Workers     *int     `envconfig:"FINCAST_WORKERS"`
	Brokers     []string `envconfig:"KAFKA_BROKERS"`
	CHHost      *string  `envconfig:"CLICKHOUSE_HOST"`
	RedisAddr   *string  `envconfig:"REDIS_ADDR"`
}

// ApplyEnv overrides fields from environment variables. Setting a broker,
// ClickHouse host or Redis address also enables that section.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := envconfig.Process("", &o); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	setString(&c.Environment, o.Environment)
	setString(&c.Source.Type, o.Source)
	setString(&c.Source.JSONDir, o.JSONDir)
	setString(&c.Output.Dir, o.OutputDir)
	setString(&c.Log.Level, o.LogLevel)
	setInt(&c.Forecast.WindowLength, o.Window)
	setInt(&c.Forecast.Horizon, o.Horizon)
	setInt(&c.Forecast.Workers, o.Workers)
	if syms := trimList(o.Symbols); len(syms) > 0 {
		c.Source.Symbols = syms
	}
	if brokers := trimList(o.Brokers); len(brokers) > 0 {
		c.Kafka.Brokers = brokers
		c.Kafka.Enabled = true
	}
	if o.CHHost != nil {
		c.ClickHouse.Host = *o.CHHost
		c.ClickHouse.Enabled = true
	}
	if o.RedisAddr != nil {
		c.Redis.Addr = *o.RedisAddr
		c.Redis.Enabled = true
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed on %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return err
	}
	if c.Forecast.WindowLength < 2*c.Forecast.Horizon {
		return fmt.Errorf("forecast.window_length must be at least twice forecast.horizon")
	}
	if c.Source.Type == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("source.type 'clickhouse' requires clickhouse.enabled")
	}
	return nil
}

func trimList(parts []string) []string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

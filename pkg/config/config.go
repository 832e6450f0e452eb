package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// RateLimit is a token bucket shape; zero capacity means unlimited.
type RateLimit struct {
	Capacity     float64 `yaml:"capacity"`
	RefillPerSec float64 `yaml:"refill_per_sec"`
}

// ProviderConfig is shared by the credentialed providers. An empty APIKey disables the provider.
type ProviderConfig struct {
	APIKey    string    `yaml:"api_key"`
	BaseURL   string    `yaml:"base_url"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

type ProvidersConfig struct {
	RequestTimeout time.Duration  `yaml:"request_timeout" default:"8s"`
	Finnhub        ProviderConfig `yaml:"finnhub"`
	AlphaVantage   ProviderConfig `yaml:"alphavantage"`
	FMP            ProviderConfig `yaml:"fmp"`
	Yahoo          struct {
		Enabled   bool      `yaml:"enabled"`
		RateLimit RateLimit `yaml:"rate_limit"`
	} `yaml:"yahoo"`
	// Synthetic replaces every real provider when enabled.
	Synthetic struct {
		Enabled bool  `yaml:"enabled"`
		Seed    int64 `yaml:"seed"`
	} `yaml:"synthetic"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		AllowOrigins    []string      `yaml:"allow_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"json"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"finfeed.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Providers ProvidersConfig `yaml:"providers"`
	Registry  struct {
		// Priority maps an operation to provider names, best first.
		Priority map[string][]string `yaml:"priority"`
	} `yaml:"registry"`
	Retry struct {
		MaxAttempts uint          `yaml:"max_attempts" default:"2"`
		BaseDelay   time.Duration `yaml:"base_delay" default:"200ms"`
		MaxDelay    time.Duration `yaml:"max_delay" default:"2s"`
	} `yaml:"retry"`
	Validation struct {
		MinPrice         float64 `yaml:"min_price"`
		MaxPrice         float64 `yaml:"max_price" default:"100000"`
		MaxChangePercent float64 `yaml:"max_change_percent" default:"50"`
		RequireVolume    *bool   `yaml:"require_volume" default:"true"`
	} `yaml:"validation"`
	Cache struct {
		Backend       string        `yaml:"backend" default:"memory"`
		Retention     time.Duration `yaml:"retention" default:"24h"`
		MemoryMaxSize int           `yaml:"memory_max_size" default:"10000"`
		TTL           struct {
			Quote       time.Duration `yaml:"quote" default:"15s"`
			Historical  time.Duration `yaml:"historical" default:"1h"`
			CompanyInfo time.Duration `yaml:"company_info" default:"6h"`
			News        time.Duration `yaml:"news" default:"10m"`
			Indicators  time.Duration `yaml:"indicators" default:"5m"`
		} `yaml:"ttl"`
		Redis struct {
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"finfeed"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Subscriptions struct {
		PollInterval  time.Duration `yaml:"poll_interval" default:"5s"`
		BackoffFactor float64       `yaml:"backoff_factor" default:"2"`
		MaxBackoff    time.Duration `yaml:"max_backoff" default:"1m"`
	} `yaml:"subscriptions"`
	Heartbeat struct {
		Interval    time.Duration `yaml:"interval" default:"30s"`
		ProbeSymbol string        `yaml:"probe_symbol" default:"SPY"`
		Timeout     time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"heartbeat"`
	Sink struct {
		Backend      string        `yaml:"backend" default:"none"`
		BufferSize   int           `yaml:"buffer_size" default:"1000"`
		MaxRPS       int           `yaml:"max_rps" default:"5"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		// PriceDecimals rounds forwarded prices; 0 forwards them untouched.
		PriceDecimals int `yaml:"price_decimals" default:"4"`
	} `yaml:"sink"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"finfeed.quotes"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"finfeed"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
	} `yaml:"clickhouse"`
}

var (
	knownProviders  = []string{"finnhub", "alphavantage", "fmp", "yahoo", "synthetic"}
	knownOperations = []string{"quote", "historical", "company_info", "news"}
)

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, overrides it with environment variables and validates the result.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Providers.Finnhub.APIKey = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		c.Providers.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("FMP_API_KEY"); v != "" {
		c.Providers.FMP.APIKey = v
	}
	if v, ok := envBool("YAHOO_ENABLED"); ok {
		c.Providers.Yahoo.Enabled = v
	}
	if v, ok := envBool("SYNTHETIC_ENABLED"); ok {
		c.Providers.Synthetic.Enabled = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Backend = "redis"
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("SINK_BACKEND"); v != "" {
		c.Sink.Backend = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("cache.backend must be 'memory' or 'redis', got '%s'", c.Cache.Backend)
	}
	switch c.Sink.Backend {
	case "none":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when sink.backend is kafka")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required when sink.backend is clickhouse")
		}
	default:
		return fmt.Errorf("sink.backend must be 'none', 'kafka' or 'clickhouse', got '%s'", c.Sink.Backend)
	}
	if c.Logging.Collector.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when logging.collector is enabled")
	}
	if c.Retry.MaxAttempts == 0 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Validation.MaxPrice <= c.Validation.MinPrice {
		return fmt.Errorf("validation.max_price must exceed validation.min_price")
	}
	if c.Validation.MaxChangePercent <= 0 {
		return fmt.Errorf("validation.max_change_percent must be positive")
	}
	if c.Subscriptions.PollInterval <= 0 {
		return fmt.Errorf("subscriptions.poll_interval must be positive")
	}
	if c.Subscriptions.BackoffFactor <= 1 {
		return fmt.Errorf("subscriptions.backoff_factor must be greater than 1")
	}
	if c.Subscriptions.MaxBackoff < c.Subscriptions.PollInterval {
		return fmt.Errorf("subscriptions.max_backoff must be >= poll_interval")
	}
	if c.Heartbeat.ProbeSymbol == "" {
		return fmt.Errorf("heartbeat.probe_symbol is required")
	}
	for op, names := range c.Registry.Priority {
		if !contains(knownOperations, op) {
			return fmt.Errorf("registry.priority: unknown operation '%s'", op)
		}
		for _, n := range names {
			if !contains(knownProviders, n) {
				return fmt.Errorf("registry.priority.%s: unknown provider '%s'", op, n)
			}
		}
	}
	return nil
}

// RequireVolume reports whether a quote needs volume to be fully valid.
func (c *Config) RequireVolume() bool {
	return c.Validation.RequireVolume == nil || *c.Validation.RequireVolume
}

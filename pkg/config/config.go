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

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Analytics struct {
		Symbols        []string      `yaml:"symbols"`
		LookbackDays   int           `yaml:"lookback_days" default:"365"`
		MomentumWindow int           `yaml:"momentum_window" default:"7"`
		RSIPeriod      int           `yaml:"rsi_period" default:"14"`
		RollingWindow  int           `yaml:"rolling_window" default:"60"`
		SentimentAlpha float64       `yaml:"sentiment_alpha" default:"0.3"`
		UseSentiment   bool          `yaml:"use_sentiment" default:"true"`
		ForecastOrder  [3]int        `yaml:"forecast_order"`
		Timeout        time.Duration `yaml:"timeout" default:"60s"`
	} `yaml:"analytics"`
	Prices struct {
		Source          string        `yaml:"source" default:"yahoo"`
		BaseURL         string        `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
		Timeout         time.Duration `yaml:"timeout" default:"15s"`
		RatePerSec      float64       `yaml:"rate_per_sec" default:"2"`
		BreakerFailures uint32        `yaml:"breaker_failures" default:"5"`
		BreakerOpenFor  time.Duration `yaml:"breaker_open_for" default:"30s"`
		DedupTimeout    time.Duration `yaml:"dedup_timeout" default:"30s"`
	} `yaml:"prices"`
	News struct {
		Enabled       bool              `yaml:"enabled" default:"true"`
		NewsAPIKey    string            `yaml:"newsapi_key"`
		NewsAPIURL    string            `yaml:"newsapi_url" default:"https://newsapi.org/v2/everything"`
		MediaStackKey string            `yaml:"mediastack_key"`
		MediaStackURL string            `yaml:"mediastack_url" default:"https://api.mediastack.com/v1/news"`
		TwitterToken  string            `yaml:"twitter_bearer_token"`
		TwitterURL    string            `yaml:"twitter_url" default:"https://api.twitter.com/2/tweets/search/recent"`
		RSSBaseURL    string            `yaml:"rss_base_url" default:"https://news.google.com/rss/search"`
		LookbackDays  int               `yaml:"lookback_days" default:"7"`
		PageSize      int               `yaml:"page_size" default:"10"`
		RatePerSec    float64           `yaml:"rate_per_sec" default:"1"`
		Queries       map[string]string `yaml:"queries"`
		Timeout       time.Duration     `yaml:"timeout" default:"15s"`
	} `yaml:"news"`
	ModelService struct {
		URL             string        `yaml:"url"`
		Timeout         time.Duration `yaml:"timeout" default:"20s"`
		BreakerFailures uint32        `yaml:"breaker_failures" default:"3"`
		BreakerOpenFor  time.Duration `yaml:"breaker_open_for" default:"60s"`
		RetryAttempts   int           `yaml:"retry_attempts" default:"2"`
	} `yaml:"model_service"`
	Sentiment struct {
		CacheSize  int `yaml:"cache_size" default:"2048"`
		MaxTextLen int `yaml:"max_text_len" default:"512"`
	} `yaml:"sentiment"`
	Cache struct {
		MemorySize  int           `yaml:"memory_size" default:"256"`
		SnapshotTTL time.Duration `yaml:"snapshot_ttl" default:"30m"`
		Redis       struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"quantlens"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Refresh struct {
		Enabled  bool   `yaml:"enabled" default:"true"`
		Schedule string `yaml:"schedule" default:"@every 15m"`
	} `yaml:"refresh"`
	Kafka struct {
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic" default:"quantlens.snapshots"`
		Compression  string        `yaml:"compression" default:"gzip"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host        string        `yaml:"host"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"quantlens"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		Table       string        `yaml:"table" default:"daily_prices"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout time.Duration `yaml:"read_timeout" default:"30s"`
	} `yaml:"clickhouse"`
}

// Default returns a config populated only from struct defaults.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	c.Analytics.ForecastOrder = [3]int{1, 0, 1}
	return &c
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides selected fields from the environment lookup.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("QL_SYMBOLS"); v != "" {
		c.Analytics.Symbols = splitList(v)
	}
	if v := getenv("QL_MODEL_SERVICE_URL"); v != "" {
		c.ModelService.URL = v
	}
	if v := getenv("NEWSAPI_KEY"); v != "" {
		c.News.NewsAPIKey = v
	}
	if v := getenv("MEDIASTACK_KEY"); v != "" {
		c.News.MediaStackKey = v
	}
	if v := getenv("TWITTER_BEARER_TOKEN"); v != "" {
		c.News.TwitterToken = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Cache.Redis.Enabled = true
		c.Cache.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Cache.Redis.Port = p
			}
		}
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Analytics.Symbols) < 2 {
		return fmt.Errorf("analytics.symbols needs at least 2 instruments, got %d", len(c.Analytics.Symbols))
	}
	if c.Analytics.MomentumWindow <= 0 || c.Analytics.RSIPeriod <= 0 || c.Analytics.RollingWindow <= 1 {
		return fmt.Errorf("analytics windows must be positive (rolling_window > 1)")
	}
	if c.Analytics.SentimentAlpha < 0 {
		return fmt.Errorf("analytics.sentiment_alpha must be >= 0")
	}
	for _, o := range c.Analytics.ForecastOrder {
		if o < 0 {
			return fmt.Errorf("analytics.forecast_order must be non-negative, got %v", c.Analytics.ForecastOrder)
		}
	}
	switch c.Prices.Source {
	case "yahoo":
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required when prices.source is 'clickhouse'")
		}
	default:
		return fmt.Errorf("prices.source must be 'yahoo' or 'clickhouse', got '%s'", c.Prices.Source)
	}
	if c.Sentiment.CacheSize <= 0 || c.Sentiment.MaxTextLen <= 0 {
		return fmt.Errorf("sentiment.cache_size and sentiment.max_text_len must be positive")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

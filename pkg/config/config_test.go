package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
analytics:
  symbols: [aapl, msft]
`

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 365, c.Analytics.LookbackDays)
	assert.Equal(t, 60, c.Analytics.RollingWindow)
	assert.InDelta(t, 0.3, c.Analytics.SentimentAlpha, 1e-12)
	assert.Equal(t, [3]int{1, 0, 1}, c.Analytics.ForecastOrder)
	assert.Equal(t, "yahoo", c.Prices.Source)
	assert.Equal(t, "@every 15m", c.Refresh.Schedule)
	assert.Equal(t, 30*time.Minute, c.Cache.SnapshotTTL)
	assert.Equal(t, []string{"aapl", "msft"}, c.Analytics.Symbols)
}

func TestParse_Overrides(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
analytics:
  symbols: [AAPL, MSFT, SPY]
  forecast_order: [2, 1, 0]
  rolling_window: 20
prices:
  source: clickhouse
clickhouse:
  host: ch.local
`))
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, [3]int{2, 1, 0}, c.Analytics.ForecastOrder)
	assert.Equal(t, 20, c.Analytics.RollingWindow)
	assert.Equal(t, "clickhouse", c.Prices.Source)
	assert.Equal(t, 9000, c.ClickHouse.Port)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"one symbol":          "analytics:\n  symbols: [AAPL]\n",
		"bad source":          minimalYAML + "prices:\n  source: csv\n",
		"clickhouse no host":  minimalYAML + "prices:\n  source: clickhouse\n",
		"negative alpha":      minimalYAML + "  sentiment_alpha: -1\n",
		"negative order":      minimalYAML + "  forecast_order: [1, -1, 0]\n",
		"rolling window one":  minimalYAML + "  rolling_window: 1\n",
		"malformed yaml":      "analytics: [",
		"zero sentiment size": minimalYAML + "sentiment:\n  cache_size: 0\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	env := map[string]string{
		"QL_SYMBOLS":           "AAPL, MSFT ,,SPY",
		"NEWSAPI_KEY":          "k",
		"MEDIASTACK_KEY":       "ms",
		"TWITTER_BEARER_TOKEN": "tw",
		"REDIS_ADDR":           "cache.local:6380",
		"KAFKA_BROKERS":        "b1:9092,b2:9092",
	}
	c.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, []string{"AAPL", "MSFT", "SPY"}, c.Analytics.Symbols)
	assert.Equal(t, "k", c.News.NewsAPIKey)
	assert.Equal(t, "ms", c.News.MediaStackKey)
	assert.Equal(t, "tw", c.News.TwitterToken)
	assert.True(t, c.Cache.Redis.Enabled)
	assert.Equal(t, "cache.local", c.Cache.Redis.Host)
	assert.Equal(t, 6380, c.Cache.Redis.Port)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, c.Kafka.Brokers)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Analytics.Symbols, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

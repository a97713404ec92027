package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"orderbook-watcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Sampler  SamplerConfig  `mapstructure:"sampler"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SamplerConfig governs the order book sampling loop.
type SamplerConfig struct {
	Interval        time.Duration   `mapstructure:"interval"`
	Depth           int             `mapstructure:"depth"`
	Markets         []string        `mapstructure:"markets"`
	Imbalance       ImbalanceConfig `mapstructure:"imbalance"`
	StartupDelay    time.Duration   `mapstructure:"startup_delay"`
	AdvisoryLockKey int64           `mapstructure:"advisory_lock_key"`
}

// ImbalanceConfig controls order imbalance persistence.
type ImbalanceConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Alternate persists imbalance rows every other tick instead of every tick.
	Alternate bool `mapstructure:"alternate"`
}

// ExchangeConfig covers Binance futures REST access.
type ExchangeConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	APISecret      string        `mapstructure:"api_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UseTestnet     bool          `mapstructure:"use_testnet"`
}

// IngestConfig tunes the candle/funding-rate connectors.
type IngestConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
}

// AlertingConfig defines failure alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram delivery parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BOOKWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "bookwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("sampler.interval", "10s")
	v.SetDefault("sampler.depth", 20)
	v.SetDefault("sampler.markets", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("sampler.imbalance.enabled", true)
	v.SetDefault("sampler.imbalance.alternate", true)
	v.SetDefault("sampler.startup_delay", "5s")
	v.SetDefault("sampler.advisory_lock_key", int64(0x626f6f6b))

	v.SetDefault("exchange.request_timeout", "10s")
	v.SetDefault("exchange.use_testnet", false)

	v.SetDefault("ingest.chunk_size", 500)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.cooldown", "15m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Sampler.Interval <= 0 {
		return fmt.Errorf("sampler.interval must be greater than zero")
	}
	if c.Sampler.Interval%time.Second != 0 {
		return fmt.Errorf("sampler.interval must be a whole number of seconds")
	}
	if c.Sampler.Depth <= 0 {
		return fmt.Errorf("sampler.depth must be greater than zero")
	}
	if len(c.Sampler.Markets) == 0 {
		return fmt.Errorf("sampler.markets must not be empty")
	}
	if c.Ingest.ChunkSize < 0 {
		return fmt.Errorf("ingest.chunk_size cannot be negative")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"callwatch/internal/logging"
)

const envPrefix = "CALLWATCH"

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Chains    ChainsConfig    `mapstructure:"chains"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Retention RetentionConfig `mapstructure:"retention"`
	Charts    ChartsConfig    `mapstructure:"charts"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// TelegramConfig covers the bot used to watch and relay messages.
type TelegramConfig struct {
	BotToken     string `mapstructure:"bot_token"`
	SourceChatID int64  `mapstructure:"source_chat_id"`
	DestChatID   int64  `mapstructure:"dest_chat_id"`
	APIBase      string `mapstructure:"api_base"`
}

// OpenAIConfig covers the chat completion endpoint.
type OpenAIConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	Temperature    float32       `mapstructure:"temperature"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CoinGeckoConfig covers market data access.
type CoinGeckoConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	APIKeyHeader   string        `mapstructure:"api_key_header"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// PipelineConfig governs per-message handling.
type PipelineConfig struct {
	MessageDeadline time.Duration `mapstructure:"message_deadline"`
	DebugDumpPath   string        `mapstructure:"debug_dump_path"`
	Persist         bool          `mapstructure:"persist"`
}

// ChainsConfig overrides the platform -> CoinGecko chain slug table.
type ChainsConfig struct {
	Slugs map[string]string `mapstructure:"slugs"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// RetentionConfig controls pruning of the analysis history.
type RetentionConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	MaxAge         time.Duration `mapstructure:"max_age"`
	Interval       time.Duration `mapstructure:"interval"`
	StartupDelay   time.Duration `mapstructure:"startup_delay"`
	RunImmediately bool          `mapstructure:"run_immediately"`
}

// ChartsConfig sets chart rendering behaviour.
type ChartsConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Days      []int  `mapstructure:"days"`
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`
	MaxPoints int    `mapstructure:"max_points"`
}

// Environment names used by the earlier scripts, still honoured.
var legacyEnv = map[string]string{
	"openai.api_key":          "OPENAI_API_KEY",
	"telegram.bot_token":      "CALL_BOT_ID",
	"telegram.source_chat_id": "MY_USER_ID",
	"telegram.dest_chat_id":   "CHAT_ID",
	"coingecko.api_key":       "COINGECKO_API_KEY",
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

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
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv binds each key to the prefixed name first and the legacy
// name second, so the prefixed variable wins when both are set.
func bindLegacyEnv(v *viper.Viper) error {
	replacer := strings.NewReplacer(".", "_")
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(replacer.Replace(key))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "callwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")

	v.SetDefault("openai.model", "gpt-3.5-turbo")
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.max_tokens", 0)
	v.SetDefault("openai.request_timeout", "60s")

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.api_key_header", "x-cg-demo-api-key")
	v.SetDefault("coingecko.request_timeout", "10s")
	v.SetDefault("coingecko.user_agent", "callwatch/1.0")

	v.SetDefault("pipeline.message_deadline", "2m")
	v.SetDefault("pipeline.debug_dump_path", "token_info.json")
	v.SetDefault("pipeline.persist", true)

	v.SetDefault("chains.slugs", map[string]string{})

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x63616c6c))

	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.max_age", "720h")
	v.SetDefault("retention.interval", "6h")
	v.SetDefault("retention.startup_delay", "1m")
	v.SetDefault("retention.run_immediately", false)

	v.SetDefault("charts.output_dir", "charts")
	v.SetDefault("charts.days", []int{1, 7, 30})
	v.SetDefault("charts.width", 1280)
	v.SetDefault("charts.height", 720)
	v.SetDefault("charts.max_points", 500)
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
	if c.Pipeline.MessageDeadline <= 0 {
		return fmt.Errorf("pipeline.message_deadline must be greater than zero")
	}
	if c.CoinGecko.RequestTimeout <= 0 {
		return fmt.Errorf("coingecko.request_timeout must be greater than zero")
	}
	if c.OpenAI.RequestTimeout <= 0 {
		return fmt.Errorf("openai.request_timeout must be greater than zero")
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("openai.temperature must be between 0 and 2")
	}
	if c.Retention.Enabled {
		if c.Retention.MaxAge <= 0 {
			return fmt.Errorf("retention.max_age must be greater than zero")
		}
		if c.Retention.Interval <= 0 {
			return fmt.Errorf("retention.interval must be greater than zero")
		}
	}
	for _, d := range c.Charts.Days {
		if d <= 0 {
			return fmt.Errorf("charts.days entries must be positive, got %d", d)
		}
	}
	if c.Charts.Width <= 0 || c.Charts.Height <= 0 {
		return fmt.Errorf("charts.width and charts.height must be greater than zero")
	}
	if c.Charts.MaxPoints < 0 {
		return fmt.Errorf("charts.max_points must not be negative")
	}
	return nil
}

// ValidateRelay checks the settings the run command needs on top of Validate.
func (c *Config) ValidateRelay() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required (or CALL_BOT_ID)")
	}
	if c.Telegram.SourceChatID == 0 {
		return fmt.Errorf("telegram.source_chat_id is required (or MY_USER_ID)")
	}
	if c.Telegram.DestChatID == 0 {
		return fmt.Errorf("telegram.dest_chat_id is required (or CHAT_ID)")
	}
	return c.ValidateOpenAI()
}

// ValidateOpenAI checks the completion settings.
func (c *Config) ValidateOpenAI() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required (or OPENAI_API_KEY)")
	}
	return nil
}

// ResolveChartDays returns either the CLI override or config default.
func (c *Config) ResolveChartDays(override []int) []int {
	if len(override) > 0 {
		return override
	}
	return c.Charts.Days
}

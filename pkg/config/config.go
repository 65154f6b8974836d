package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Quotes    QuotesConfig    `mapstructure:"quotes"`
	AutoTrade AutoTradeConfig `mapstructure:"autotrade"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
}

type ServerConfig struct {
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	RateLimit   int      `mapstructure:"rate_limit"` // requests per minute per client IP
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// StorageConfig selects the ledger and customization backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // memory, postgres
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type TelemetryConfig struct {
	ServiceName  string  `mapstructure:"service_name"`
	CollectorURL string  `mapstructure:"collector_url"`
	Exporter     string  `mapstructure:"exporter"` // otlp, stdout
	Environment  string  `mapstructure:"environment"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
	Enabled      bool    `mapstructure:"enabled"`
}

// EngineConfig holds the decision and execution constants. Money values are
// strings so they parse exactly into decimals.
type EngineConfig struct {
	FeeRate         string `mapstructure:"fee_rate"`
	BaseTolerance   string `mapstructure:"base_tolerance"`
	MaxCashUsage    string `mapstructure:"max_cash_usage"`
	TaxRate         string `mapstructure:"tax_rate"`
	InitialValue    string `mapstructure:"initial_value"`
	DefaultStrategy string `mapstructure:"default_strategy"`
}

type QuotesConfig struct {
	Provider        string        `mapstructure:"provider"` // simulated, alpaca
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	Seed            int64         `mapstructure:"seed"`
	AlpacaAPIKey    string        `mapstructure:"alpaca_api_key"`
	AlpacaSecretKey string        `mapstructure:"alpaca_secret_key"`
	AlpacaFeed      string        `mapstructure:"alpaca_feed"` // iex, sip
	Stream          bool          `mapstructure:"stream"`
}

type AutoTradeConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Accounts []string `mapstructure:"accounts"`
}

type CatalogConfig struct {
	File string `mapstructure:"file"`
}

func Load(configName string) (*Config, error) {
	v := viper.New()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/portfolio-engine/")

	v.SetEnvPrefix("PORTFOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("invalid storage.backend %q: want memory or postgres", c.Storage.Backend)
	}
	switch c.Quotes.Provider {
	case "simulated":
	case "alpaca":
		if c.Quotes.AlpacaFeed != "" && c.Quotes.AlpacaFeed != "iex" && c.Quotes.AlpacaFeed != "sip" {
			return fmt.Errorf("invalid quotes.alpaca_feed %q: want iex or sip", c.Quotes.AlpacaFeed)
		}
	default:
		return fmt.Errorf("invalid quotes.provider %q: want simulated or alpaca", c.Quotes.Provider)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("invalid server.rate_limit %d: must be 0 (off) or positive", c.Server.RateLimit)
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("invalid telemetry.sample_ratio %v: want a value in [0, 1]", r)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 300)
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("storage.backend", "memory")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "portfolio")
	v.SetDefault("database.database", "portfolio")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.group_id", "portfolio-engine")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "portfolio-engine")
	v.SetDefault("telemetry.exporter", "otlp")
	v.SetDefault("telemetry.environment", "dev")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("engine.fee_rate", "0.001")
	v.SetDefault("engine.base_tolerance", "0.05")
	v.SetDefault("engine.max_cash_usage", "0.95")
	v.SetDefault("engine.tax_rate", "0.37")
	v.SetDefault("engine.initial_value", "100000.00")
	v.SetDefault("engine.default_strategy", "balanced")

	v.SetDefault("quotes.provider", "simulated")
	v.SetDefault("quotes.cache_ttl", 15*time.Second)
	v.SetDefault("quotes.seed", 0)
	v.SetDefault("quotes.alpaca_feed", "iex")
	v.SetDefault("quotes.stream", false)

	v.SetDefault("autotrade.enabled", false)
	v.SetDefault("autotrade.accounts", []string{"default"})
}

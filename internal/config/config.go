package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// OAuthClient holds a registered OAuth application.
type OAuthClient struct {
	ClientID     string `envconfig:"CLIENT_ID" default:""`
	ClientSecret string `envconfig:"CLIENT_SECRET" default:""`
}

// SMTP holds outgoing mail settings for the Email connector.
type SMTP struct {
	Host     string `envconfig:"HOST" default:""`
	Port     int    `envconfig:"PORT" default:"587"`
	Username string `envconfig:"USERNAME" default:""`
	Password string `envconfig:"PASSWORD" default:""`
	From     string `envconfig:"FROM" default:"area@localhost"`
	// Security is starttls, tls (implicit, port 465) or none; empty picks by port.
	Security string `envconfig:"SECURITY" default:""`
}

// MQTT holds broker settings for the MQTT connector.
type MQTT struct {
	Broker   string `envconfig:"BROKER" default:""`
	ClientID string `envconfig:"CLIENT_ID" default:"area-engine"`
	Username string `envconfig:"USERNAME" default:""`
	Password string `envconfig:"PASSWORD" default:""`
}

// OTel holds tracing exporter settings.
type OTel struct {
	Exporter    string  `envconfig:"EXPORTER" default:"none"`
	Endpoint    string  `envconfig:"ENDPOINT" default:""`
	Insecure    bool    `envconfig:"INSECURE" default:"true"`
	Sampler     string  `envconfig:"SAMPLER" default:"always_on"`
	SampleRatio float64 `envconfig:"SAMPLE_RATIO" default:"1.0"`
}

// Config holds the configuration for the AREA scheduler.
// Environment variables are parsed from the AREA_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	DBDriver    string `envconfig:"DB_DRIVER" default:"auto"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:""`

	// Scheduling
	TickInterval     time.Duration `envconfig:"TICK_INTERVAL" default:"30s"`
	FastTick         bool          `envconfig:"FAST_TICK" default:"false"`
	FastTickInterval time.Duration `envconfig:"FAST_TICK_INTERVAL" default:"10s"`
	CallTimeout      time.Duration `envconfig:"CALL_TIMEOUT" default:"15s"`
	HTTPRetries      int           `envconfig:"HTTP_RETRIES" default:"2"`
	RetryBaseBackoff time.Duration `envconfig:"RETRY_BASE_BACKOFF" default:"200ms"`
	Parallelism      int           `envconfig:"PARALLELISM" default:"4"`
	QueueSize        int           `envconfig:"QUEUE_SIZE" default:"256"`
	Timezone         string        `envconfig:"TIMEZONE" default:"Local"`

	// HTTP surface (health + metrics)
	HTTPPort       int           `envconfig:"HTTP_PORT" default:"8090"`
	HealthInterval time.Duration `envconfig:"HEALTH_INTERVAL" default:"30s"`

	// Catalog file; empty uses the embedded default catalog.
	CatalogPath string `envconfig:"CATALOG_PATH" default:""`

	// Connector-private watermark cache
	WatermarkBackend  string        `envconfig:"WATERMARK_BACKEND" default:"memory"`
	RedisURL          string        `envconfig:"REDIS_URL" default:""`
	TokenSafetyMargin time.Duration `envconfig:"TOKEN_SAFETY_MARGIN" default:"60s"`

	// Connector credentials
	GitHub        OAuthClient `envconfig:"GITHUB"`
	Google        OAuthClient `envconfig:"GOOGLE"`
	Spotify       OAuthClient `envconfig:"SPOTIFY"`
	Twitch        OAuthClient `envconfig:"TWITCH"`
	WeatherAPIKey string      `envconfig:"WEATHER_API_KEY" default:""`
	NewsAPIKey    string      `envconfig:"NEWSAPI_KEY" default:""`
	YouTubeAPIKey string      `envconfig:"YOUTUBE_API_KEY" default:""`
	TelegramToken string      `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	SMTP          SMTP        `envconfig:"SMTP"`
	MQTT          MQTT        `envconfig:"MQTT"`
	KafkaBrokers  []string    `envconfig:"KAFKA_BROKERS" default:""`

	OTel OTel `envconfig:"OTEL"`
}

// ResolveDefaults validates drivers and derives values left on "auto".
func (c *Config) ResolveDefaults() error {
	if c.DBDriver == "" || c.DBDriver == "auto" {
		if c.PostgresDSN != "" {
			c.DBDriver = "postgres"
		} else {
			c.DBDriver = "sqlite"
		}
	}

	switch c.DBDriver {
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("DB_DRIVER=postgres requires POSTGRES_DSN")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			c.SQLitePath = "area.db"
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	switch c.WatermarkBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("WATERMARK_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("unsupported WATERMARK_BACKEND: %s", c.WatermarkBackend)
	}

	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive")
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.Parallelism < 1 {
		c.Parallelism = 1
	}
	if c.HTTPRetries < 0 {
		c.HTTPRetries = 0
	}

	var brokers []string
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.KafkaBrokers = brokers

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// New creates a new Config by parsing environment variables
// prefixed with AREA_, e.g. AREA_TICK_INTERVAL, AREA_GITHUB_CLIENT_ID.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("AREA", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Dur("tick_interval", cfg.EffectiveTickInterval()).
		Dur("call_timeout", cfg.CallTimeout).
		Int("parallelism", cfg.Parallelism).
		Int("port", cfg.HTTPPort).
		Str("watermark_backend", cfg.WatermarkBackend).
		Str("catalog_path", cfg.CatalogPath).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Str("otel_exporter", cfg.OTel.Exporter).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		Environment:       EnvTesting,
		LogLevel:          "debug",
		DBDriver:          "sqlite",
		SQLitePath:        ":memory:",
		TickInterval:      time.Second,
		FastTickInterval:  time.Second,
		CallTimeout:       2 * time.Second,
		HTTPRetries:       1,
		RetryBaseBackoff:  time.Millisecond,
		Parallelism:       2,
		QueueSize:         64,
		Timezone:          "UTC",
		HTTPPort:          0,
		HealthInterval:    time.Second,
		WatermarkBackend:  "memory",
		TokenSafetyMargin: time.Minute,
		OTel:              OTel{Exporter: "none"},
	}
}

// EffectiveTickInterval returns the scheduler cadence, honouring the fast dev cadence.
func (c *Config) EffectiveTickInterval() time.Duration {
	if c.FastTick && c.FastTickInterval > 0 {
		return c.FastTickInterval
	}
	return c.TickInterval
}

// Location resolves the configured timezone used for wall-clock triggers.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Timezone)
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

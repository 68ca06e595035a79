package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Webhooks  WebhooksConfig  `mapstructure:"webhooks"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// WebhooksConfig covers both roles. Secret and SecretFile feed the secret
// provider chain; neither is ever logged.
type WebhooksConfig struct {
	Secret               string        `mapstructure:"secret"`
	SecretFile           string        `mapstructure:"secret_file"`
	SignatureHeader      string        `mapstructure:"signature_header"`
	EventHeader          string        `mapstructure:"event_header"`
	DeliveryHeader       string        `mapstructure:"delivery_header"`
	MaxBodyBytes         int64         `mapstructure:"max_body_bytes"`
	WorkerCount          int           `mapstructure:"worker_count"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	RetryAttempts        int           `mapstructure:"retry_attempts"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
	RetryInterval        time.Duration `mapstructure:"retry_interval"`
	RedeliveryDelay      time.Duration `mapstructure:"redelivery_delay"`
	MaxRedeliveries      int           `mapstructure:"max_redeliveries"`
	StalePendingAfter    time.Duration `mapstructure:"stale_pending_after"`
}

type RateLimitConfig struct {
	ReceiverPerMinute int `mapstructure:"receiver_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.path", "data/hookguard.db")
	v.SetDefault("database.max_connections", 4)

	// registered so AutomaticEnv can override keys absent from the file
	v.SetDefault("jwt.secret", "")
	v.SetDefault("webhooks.secret", "")
	v.SetDefault("webhooks.secret_file", "")

	v.SetDefault("jwt.issuer", "hookguard")
	v.SetDefault("jwt.access_token_ttl", time.Hour)

	v.SetDefault("webhooks.signature_header", "X-Signature")
	v.SetDefault("webhooks.event_header", "X-Webhook-Event")
	v.SetDefault("webhooks.delivery_header", "X-Webhook-Delivery")
	v.SetDefault("webhooks.max_body_bytes", 1<<20)
	v.SetDefault("webhooks.worker_count", 8)
	v.SetDefault("webhooks.request_timeout", 10*time.Second)
	v.SetDefault("webhooks.retry_attempts", 3)
	v.SetDefault("webhooks.retry_initial_interval", 500*time.Millisecond)
	v.SetDefault("webhooks.retry_max_interval", 10*time.Second)
	v.SetDefault("webhooks.retry_interval", 5*time.Minute)
	v.SetDefault("webhooks.redelivery_delay", 5*time.Minute)
	v.SetDefault("webhooks.max_redeliveries", 10)
	v.SetDefault("webhooks.stale_pending_after", 15*time.Minute)

	v.SetDefault("rate_limit.receiver_per_minute", 600)
	v.SetDefault("rate_limit.burst", 50)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Load reads path and overlays environment variables, e.g.
// WEBHOOKS_SECRET overrides webhooks.secret.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

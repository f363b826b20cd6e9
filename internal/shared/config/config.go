package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	RabbitMQ     RabbitMQConfig     `mapstructure:"rabbitmq"`
	Gateway      GatewayConfig      `mapstructure:"gateway"`
	Confirmation ConfirmationConfig `mapstructure:"confirmation"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	HTTPClient   HTTPClientConfig   `mapstructure:"http_client"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address       string `mapstructure:"address"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	SignalChannel string `mapstructure:"signal_channel"`
}

// RabbitMQConfig holds the notification broker configuration.
// An empty URL selects the log dispatcher.
type RabbitMQConfig struct {
	URL               string `mapstructure:"url"`
	NotificationQueue string `mapstructure:"notification_queue"`
}

// GatewayConfig holds payment gateway configuration.
type GatewayConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	AccessToken      string        `mapstructure:"access_token"`
	NotificationURL  string        `mapstructure:"notification_url"`
	Sandbox          bool          `mapstructure:"sandbox"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RequestsPerSec   float64       `mapstructure:"requests_per_sec"`
	Burst            int           `mapstructure:"burst"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	CircuitTimeout   time.Duration `mapstructure:"circuit_timeout"`
	// WebhookSecret enables x-signature verification when set.
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// ConfirmationConfig holds the confirmation orchestrator timings.
type ConfirmationConfig struct {
	MaxConcurrent       int           `mapstructure:"max_concurrent"`
	PreferenceTimeout   time.Duration `mapstructure:"preference_timeout"`
	PreferenceAttempts  int           `mapstructure:"preference_attempts"`
	PreferenceBackoff   time.Duration `mapstructure:"preference_backoff"`
	SignalTimeout       time.Duration `mapstructure:"signal_timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	PollTimeout         time.Duration `mapstructure:"poll_timeout"`
	MaxPollAttempts     int           `mapstructure:"max_poll_attempts"`
	NotificationTimeout time.Duration `mapstructure:"notification_timeout"`
	ActivityLogEnabled  bool          `mapstructure:"activity_log_enabled"`
	RunRetryAttempts    int           `mapstructure:"run_retry_attempts"`
	RunRetryBackoff     time.Duration `mapstructure:"run_retry_backoff"`
}

// PaymentConfig holds payment defaults.
type PaymentConfig struct {
	Currency string `mapstructure:"currency"`
}

// HTTPClientConfig holds outbound HTTP client configuration.
type HTTPClientConfig struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	return load(viper.New())
}

// LoadFile loads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/payflow")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("PAYFLOW")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Sensitive values are taken from the environment when present.
	if password := os.Getenv("PAYFLOW_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("PAYFLOW_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if token := os.Getenv("PAYFLOW_GATEWAY_ACCESS_TOKEN"); token != "" {
		cfg.Gateway.AccessToken = token
	}
	if secret := os.Getenv("PAYFLOW_GATEWAY_WEBHOOK_SECRET"); secret != "" {
		cfg.Gateway.WebhookSecret = secret
	}
	if url := os.Getenv("PAYFLOW_RABBITMQ_URL"); url != "" {
		cfg.RabbitMQ.URL = url
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.idempotency_ttl", 24*time.Hour)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "payflow")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.signal_channel", "payflow:confirmation:signals")

	// RabbitMQ defaults
	v.SetDefault("rabbitmq.notification_queue", "payment_notifications")

	// Gateway defaults
	v.SetDefault("gateway.base_url", "https://api.mercadopago.com")
	v.SetDefault("gateway.timeout", 15*time.Second)
	v.SetDefault("gateway.requests_per_sec", 10.0)
	v.SetDefault("gateway.burst", 20)
	v.SetDefault("gateway.failure_threshold", 5)
	v.SetDefault("gateway.circuit_timeout", 30*time.Second)

	// Confirmation defaults
	v.SetDefault("confirmation.max_concurrent", 50)
	v.SetDefault("confirmation.preference_timeout", 15*time.Second)
	v.SetDefault("confirmation.preference_attempts", 2)
	v.SetDefault("confirmation.preference_backoff", 2*time.Second)
	v.SetDefault("confirmation.signal_timeout", 8*time.Minute)
	v.SetDefault("confirmation.poll_interval", 5*time.Second)
	v.SetDefault("confirmation.poll_timeout", 10*time.Minute)
	v.SetDefault("confirmation.max_poll_attempts", 120)
	v.SetDefault("confirmation.notification_timeout", 10*time.Second)
	v.SetDefault("confirmation.activity_log_enabled", true)
	v.SetDefault("confirmation.run_retry_attempts", 3)
	v.SetDefault("confirmation.run_retry_backoff", 2*time.Second)

	// Payment defaults
	v.SetDefault("payment.currency", "BRL")

	// HTTP client defaults
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 20)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.dial_timeout", 10*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 30*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)

	// CORS defaults
	v.SetDefault("cors.allow_origins", []string{"*"})

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

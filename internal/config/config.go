package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the full runtime configuration, loaded once from environment
// variables (optionally seeded from a .env file).
type Config struct {
	Environment string

	Server     ServerConfig
	Scylla     ScyllaConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Clickhouse ClickhouseConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
	UserTTL  time.Duration
	CodeTTL  time.Duration
}

type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	RegistrationTopic string
	ReferralTopic     string
	ProfileTopic      string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Database string
	Username string
	Password string
}

type LoggingConfig struct {
	Level  string
	Format string
}

var (
	global *Config
	once   sync.Once
)

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is honored when present.
func LoadConfig() *Config {
	once.Do(func() {
		_ = godotenv.Load()

		global = &Config{
			Environment: getEnv("APP_ENV", "development"),
			Server: ServerConfig{
				Host:         getEnv("SERVER_HOST", "0.0.0.0"),
				Port:         getEnvInt("SERVER_PORT", 8080),
				TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
				EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
				AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
				Domain:       getEnv("SERVER_DOMAIN", "localhost"),
				CertFile:     getEnv("SERVER_CERT_FILE", ""),
				KeyFile:      getEnv("SERVER_KEY_FILE", ""),
				AutoCertDir:  getEnv("SERVER_AUTOCERT_DIR", "/var/cache/autocert"),
				Email:        getEnv("SERVER_ACME_EMAIL", ""),
				ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			},
			Scylla: ScyllaConfig{
				Nodes:    getEnvList("SCYLLA_NODES", []string{"127.0.0.1:9042"}),
				Keyspace: getEnv("SCYLLA_KEYSPACE", "wallet_referrals"),
				Username: getEnv("SCYLLA_USERNAME", ""),
				Password: getEnv("SCYLLA_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Enabled:  getEnvBool("REDIS_ENABLED", true),
				URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvInt("REDIS_DB", 0),
				PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
				UserTTL:  getEnvDuration("REDIS_USER_TTL", 5*time.Minute),
				CodeTTL:  getEnvDuration("REDIS_CODE_TTL", 30*time.Minute),
			},
			Kafka: KafkaConfig{
				Enabled:           getEnvBool("KAFKA_ENABLED", false),
				Brokers:           getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
				RegistrationTopic: getEnv("KAFKA_TOPIC_REGISTRATION", "wallet.registered"),
				ReferralTopic:     getEnv("KAFKA_TOPIC_REFERRAL", "referral.linked"),
				ProfileTopic:      getEnv("KAFKA_TOPIC_PROFILE", "wallet.profile"),
			},
			Clickhouse: ClickhouseConfig{
				Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
				URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
				Database: getEnv("CLICKHOUSE_DATABASE", "wallet_analytics"),
				Username: getEnv("CLICKHOUSE_USERNAME", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "console"),
			},
		}
	})

	return global
}

// Get returns the loaded configuration, loading it on first use.
func Get() *Config {
	if global == nil {
		return LoadConfig()
	}
	return global
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

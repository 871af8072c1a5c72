package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendNone     = "none"
	BackendRabbitMQ = "rabbitmq"
	BackendPubSub   = "pubsub"
	BackendKafka    = "kafka"
	BackendMinio    = "minio"
	BackendGCS      = "gcs"
)

type Config struct {
	ServerPort  int            `yaml:"server_port"`
	Env         string         `yaml:"env"`
	JWTSecret   string         `yaml:"jwt_secret"`
	TokenTTL    time.Duration  `yaml:"token_ttl"`
	Timezone    string         `yaml:"timezone"`
	CORSOrigins []string       `yaml:"cors_origins"`
	TrustProxy  bool           `yaml:"trust_proxy"`
	Database    DatabaseConfig `yaml:"database"`
	Log         LogConfig      `yaml:"log"`
	RateLimit   RateLimit      `yaml:"rate_limit"`
	Events      EventsConfig   `yaml:"events"`
	Storage     StorageConfig  `yaml:"storage"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	UseSSL   bool   `yaml:"use_ssl"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Console    bool   `yaml:"console"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// RateLimit bounds requests per client IP on the auth endpoints.
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"rps"`
	Burst             int     `yaml:"burst"`
}

type EventsConfig struct {
	Backend  string         `yaml:"backend"`
	Channel  string         `yaml:"channel"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	PubSub   PubSubConfig   `yaml:"pubsub"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

type RabbitMQConfig struct {
	URL             string `yaml:"url"`
	QueueDurable    bool   `yaml:"queue_durable"`
	QueueAutoDelete bool   `yaml:"queue_auto_delete"`
	QueueSuffix     string `yaml:"queue_suffix"`
	PrefetchCount   int    `yaml:"prefetch_count"`
}

type PubSubConfig struct {
	ProjectID          string `yaml:"project_id"`
	CredentialsFile    string `yaml:"credentials_file"`
	SubscriptionSuffix string `yaml:"subscription_suffix"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type StorageConfig struct {
	Backend string      `yaml:"backend"`
	Minio   MinioConfig `yaml:"minio"`
	GCS     GCSConfig   `yaml:"gcs"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// Default returns the configuration used when neither a file nor the
// environment provides a value.
func Default() Config {
	return Config{
		ServerPort:  3000,
		Env:         "production",
		TokenTTL:    7 * 24 * time.Hour,
		Timezone:    "UTC",
		CORSOrigins: []string{"http://localhost:5500", "http://127.0.0.1:5500"},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "lifelog",
			Password: "password",
			DBName:   "lifelog_db",
		},
		Log: LogConfig{
			Level:      "info",
			Console:    true,
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
		RateLimit: RateLimit{RequestsPerSecond: 5, Burst: 10},
		Events: EventsConfig{
			Backend: BackendNone,
			Channel: "activity-events",
			RabbitMQ: RabbitMQConfig{
				QueueDurable:  true,
				PrefetchCount: 10,
			},
			Kafka: KafkaConfig{GroupID: "lifelog-events"},
		},
		Storage: StorageConfig{Backend: BackendNone},
	}
}

func LoadConfig() Config {
	return applyEnv(Default())
}

// LoadConfigFile overlays a YAML file on the defaults, then applies the
// environment on top. An empty path behaves like LoadConfig.
func LoadConfigFile(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	if isDevelopment(os.Getenv("ENV")) {
		godotenv.Load()
	}

	cfg.ServerPort = getEnvInt("SERVER_PORT", cfg.ServerPort)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", cfg.JWTSecret))
	cfg.TokenTTL = getEnvDuration("JWT_TTL", cfg.TokenTTL)
	cfg.Timezone = getEnv("APP_TIMEZONE", cfg.Timezone)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", cfg.TrustProxy)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.DBName = getEnv("DB_NAME", cfg.Database.DBName)
	cfg.Database.UseSSL = getEnvBool("DB_USE_SSL", cfg.Database.UseSSL)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)

	cfg.RateLimit.RequestsPerSecond = getEnvFloat("AUTH_RATE_LIMIT_RPS", cfg.RateLimit.RequestsPerSecond)
	cfg.RateLimit.Burst = getEnvInt("AUTH_RATE_LIMIT_BURST", cfg.RateLimit.Burst)

	cfg.Events.Backend = strings.ToLower(getEnv("MQ_BACKEND", cfg.Events.Backend))
	cfg.Events.Channel = getEnv("EVENTS_CHANNEL", cfg.Events.Channel)
	cfg.Events.RabbitMQ.URL = getEnv("RABBITMQ_URL", cfg.Events.RabbitMQ.URL)
	cfg.Events.RabbitMQ.QueueSuffix = getEnv("RABBITMQ_QUEUE_SUFFIX", cfg.Events.RabbitMQ.QueueSuffix)
	cfg.Events.PubSub.ProjectID = getEnv("PUBSUB_PROJECT_ID", cfg.Events.PubSub.ProjectID)
	cfg.Events.PubSub.CredentialsFile = getEnv("PUBSUB_CREDENTIALS_FILE", cfg.Events.PubSub.CredentialsFile)
	cfg.Events.Kafka.Brokers = getEnvList("KAFKA_BROKERS", cfg.Events.Kafka.Brokers)
	cfg.Events.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", cfg.Events.Kafka.GroupID)

	cfg.Storage.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.Minio.Endpoint = getEnv("MINIO_ENDPOINT", cfg.Storage.Minio.Endpoint)
	cfg.Storage.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", cfg.Storage.Minio.AccessKey)
	cfg.Storage.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", cfg.Storage.Minio.SecretKey)
	cfg.Storage.Minio.Bucket = getEnv("MINIO_BUCKET", cfg.Storage.Minio.Bucket)
	cfg.Storage.Minio.UseSSL = getEnvBool("MINIO_USE_SSL", cfg.Storage.Minio.UseSSL)
	cfg.Storage.GCS.Bucket = getEnv("GCS_BUCKET", cfg.Storage.GCS.Bucket)
	cfg.Storage.GCS.ProjectID = getEnv("GCS_PROJECT_ID", cfg.Storage.GCS.ProjectID)
	cfg.Storage.GCS.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", cfg.Storage.GCS.CredentialsFile)

	return cfg
}

// Validate reports configuration that would prevent the server from starting.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port %d", c.ServerPort)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	// The zone name is handed to postgres, which only knows IANA names.
	if strings.EqualFold(strings.TrimSpace(c.Timezone), "local") {
		return fmt.Errorf("invalid timezone %q: use an IANA name such as UTC or Asia/Jakarta", c.Timezone)
	}
	switch c.Events.Backend {
	case "", BackendNone, BackendRabbitMQ, BackendPubSub, BackendKafka:
	default:
		return fmt.Errorf("unknown mq backend %q", c.Events.Backend)
	}
	switch c.Storage.Backend {
	case "", BackendNone, BackendMinio, BackendGCS:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// IsDevelopment reports whether error details may be exposed to clients.
func (c Config) IsDevelopment() bool {
	return isDevelopment(c.Env)
}

// Location resolves the configured timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func isDevelopment(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development":
		return true
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(strings.TrimSpace(valueStr)); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(strings.TrimSpace(valueStr)); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(strings.TrimSpace(valueStr)); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

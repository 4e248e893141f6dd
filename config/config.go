package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds all configuration for the broadcast service
type Config struct {
	Telegram  TelegramConfig
	Auth      AuthConfig
	Broadcast BroadcastConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Bot       BotConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	Service   ServiceConfig
}

// TelegramConfig holds Telegram MTProto configuration
type TelegramConfig struct {
	APIID   int
	APIHash string
	// ProtectedPhone is the account whose credentials provisioned the API access
	ProtectedPhone string
	DeviceModel    string
	ConnectTimeout time.Duration
}

// AuthConfig holds interactive login configuration
type AuthConfig struct {
	CodeLength          int
	SessionTTL          time.Duration
	MaxPasswordAttempts int
	PasswordCooldown    time.Duration
}

// BroadcastConfig holds scheduler defaults, per-account settings override them
type BroadcastConfig struct {
	Interval           time.Duration
	GroupDelayMin      time.Duration
	GroupDelayMax      time.Duration
	DailyCap           int
	Timezone           string
	RequiredTags       []string
	MaxRetries         int
	RetryBuffer        time.Duration
	SendTimeout        time.Duration
	GroupSyncInterval  time.Duration
	AutoBlacklistAfter int
	StatsRetention     time.Duration
	AccountRate        float64
	AccountBurst       int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns     int
	MigrationsPath   string
	StrictMigrations bool
}

// KafkaConfig holds Kafka configuration, empty brokers disable the event sink and the command consumer
type KafkaConfig struct {
	Brokers       []string
	GroupID       string
	TopicEvents   string
	TopicCommands string
}

// BotConfig holds the notification bot configuration, empty token disables it
type BotConfig struct {
	Token string
}

// RedisConfig holds Redis configuration, empty address disables the job lease
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LeaseTTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
	// Format is "console" for local runs or "json" for log shippers
	Format string
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Name            string
	Port            string
	ShutdownTimeout time.Duration
}

// Result is fx.Out struct for providing config dependencies
type Result struct {
	fx.Out

	Config          *Config
	TelegramConfig  *TelegramConfig
	AuthConfig      *AuthConfig
	BroadcastConfig *BroadcastConfig
	DatabaseConfig  *DatabaseConfig
	KafkaConfig     *KafkaConfig
	BotConfig       *BotConfig
	RedisConfig     *RedisConfig
	LoggingConfig   *LoggingConfig
	ServiceConfig   *ServiceConfig
}

// Out loads the configuration and splits it into sections for fx
func Out() (Result, error) {
	cfg, err := Load()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Config:          cfg,
		TelegramConfig:  &cfg.Telegram,
		AuthConfig:      &cfg.Auth,
		BroadcastConfig: &cfg.Broadcast,
		DatabaseConfig:  &cfg.Database,
		KafkaConfig:     &cfg.Kafka,
		BotConfig:       &cfg.Bot,
		RedisConfig:     &cfg.Redis,
		LoggingConfig:   &cfg.Logging,
		ServiceConfig:   &cfg.Service,
	}, nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	apiID, err := strconv.Atoi(getEnv("TELEGRAM_API_ID", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_API_ID: %w", err)
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			APIID:          apiID,
			APIHash:        getEnv("TELEGRAM_API_HASH", ""),
			ProtectedPhone: getEnv("TELEGRAM_PROTECTED_PHONE", ""),
			DeviceModel:    getEnv("TELEGRAM_DEVICE_MODEL", "broadcast-service"),
			ConnectTimeout: getEnvDuration("TELEGRAM_CONNECT_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			CodeLength:          getEnvInt("AUTH_CODE_LENGTH", 5),
			SessionTTL:          getEnvDuration("AUTH_SESSION_TTL", 5*time.Minute),
			MaxPasswordAttempts: getEnvInt("AUTH_MAX_PASSWORD_ATTEMPTS", 3),
			PasswordCooldown:    getEnvDuration("AUTH_PASSWORD_COOLDOWN", time.Minute),
		},
		Broadcast: BroadcastConfig{
			Interval:           getEnvDuration("BROADCAST_INTERVAL", 11*time.Minute),
			GroupDelayMin:      getEnvDuration("BROADCAST_GROUP_DELAY_MIN", 5*time.Second),
			GroupDelayMax:      getEnvDuration("BROADCAST_GROUP_DELAY_MAX", 10*time.Second),
			DailyCap:           getEnvInt("BROADCAST_DAILY_CAP", 500),
			Timezone:           getEnv("BROADCAST_TIMEZONE", "UTC"),
			RequiredTags:       splitList(getEnv("BROADCAST_REQUIRED_TAGS", "")),
			MaxRetries:         getEnvInt("BROADCAST_GOVERNOR_MAX_RETRIES", 2),
			RetryBuffer:        getEnvDuration("BROADCAST_GOVERNOR_BUFFER", 2*time.Second),
			SendTimeout:        getEnvDuration("BROADCAST_SEND_TIMEOUT", 60*time.Second),
			GroupSyncInterval:  getEnvDuration("BROADCAST_GROUP_SYNC_INTERVAL", 30*time.Minute),
			AutoBlacklistAfter: getEnvInt("BROADCAST_AUTO_BLACKLIST_AFTER", 0),
			StatsRetention:     getEnvDuration("BROADCAST_STATS_RETENTION", 30*24*time.Hour),
			AccountRate:        getEnvFloat("BROADCAST_ACCOUNT_RATE", 1),
			AccountBurst:       getEnvInt("BROADCAST_ACCOUNT_BURST", 3),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DATABASE_HOST", "localhost"),
			Port:     getEnv("DATABASE_PORT", "5432"),
			User:     getEnv("DATABASE_USER", "broadcast_user"),
			Password: getEnv("DATABASE_PASSWORD", "broadcast_pass"),
			DBName:   getEnv("DATABASE_NAME", "broadcast_db"),
			SSLMode:  getEnv("DATABASE_SSLMODE", "disable"),

			MaxOpenConns:     getEnvInt("DATABASE_MAX_OPEN_CONNS", 20),
			MigrationsPath:   getEnv("DATABASE_MIGRATIONS_PATH", "file://migrations"),
			StrictMigrations: getEnvBool("DATABASE_STRICT_MIGRATIONS", false),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(getEnv("KAFKA_BROKERS", "")),
			GroupID:       getEnv("KAFKA_GROUP_ID", "broadcast-service-group"),
			TopicEvents:   getEnv("KAFKA_TOPIC_BROADCAST_EVENTS", "broadcast.events"),
			TopicCommands: getEnv("KAFKA_TOPIC_BROADCAST_COMMANDS", "broadcast.commands"),
		},
		Bot: BotConfig{
			Token: getEnv("BOT_TOKEN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			LeaseTTL: getEnvDuration("REDIS_LEASE_TTL", 30*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Service: ServiceConfig{
			Name:            getEnv("SERVICE_NAME", "broadcast-service"),
			Port:            getEnv("SERVICE_PORT", "8085"),
			ShutdownTimeout: getEnvDuration("SERVICE_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Telegram.APIID == 0 {
		return fmt.Errorf("TELEGRAM_API_ID is required")
	}

	if c.Telegram.APIHash == "" {
		return fmt.Errorf("TELEGRAM_API_HASH is required")
	}

	if c.Auth.CodeLength <= 0 {
		return fmt.Errorf("AUTH_CODE_LENGTH must be positive")
	}

	if c.Auth.MaxPasswordAttempts <= 0 {
		return fmt.Errorf("AUTH_MAX_PASSWORD_ATTEMPTS must be positive")
	}

	if c.Broadcast.GroupDelayMin < 0 || c.Broadcast.GroupDelayMax < c.Broadcast.GroupDelayMin {
		return fmt.Errorf("BROADCAST_GROUP_DELAY_MIN must be non-negative and not above BROADCAST_GROUP_DELAY_MAX")
	}

	if c.Broadcast.Interval <= 0 {
		return fmt.Errorf("BROADCAST_INTERVAL must be positive")
	}

	if _, err := time.LoadLocation(c.Broadcast.Timezone); err != nil {
		return fmt.Errorf("invalid BROADCAST_TIMEZONE: %w", err)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("DATABASE_HOST is required")
	}

	if c.Database.DBName == "" {
		return fmt.Errorf("DATABASE_NAME is required")
	}

	return nil
}

// Location returns the timezone used for daily boundaries and windows
func (c *BroadcastConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetDSN returns database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Enabled reports whether Kafka brokers are configured
func (c *KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvDuration gets environment variable as duration with default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// getEnvInt gets environment variable as int with default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// splitList splits a comma separated list dropping empty items
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

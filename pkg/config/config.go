package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Mindbody  MindbodyConfig
	Import    ImportConfig
	Scheduler SchedulerConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MindbodyConfig holds credentials and tuning for the source booking API.
type MindbodyConfig struct {
	BaseURL        string
	APIKey         string
	SiteID         string
	Username       string
	Password       string
	PageSize       int
	RequestTimeout time.Duration
	TokenTTL       time.Duration
}

// ImportConfig tunes the import worker and watchdog.
type ImportConfig struct {
	QueueSize         int
	HeartbeatInterval time.Duration
	WatchdogInterval  time.Duration
	StaleThreshold    time.Duration
	DefaultWindowDays int
}

// SchedulerConfig drives automatic recurring imports.
type SchedulerConfig struct {
	Enabled       bool
	CronSpec      string
	Organizations []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Mindbody = MindbodyConfig{
		BaseURL:        v.GetString("MINDBODY_BASE_URL"),
		APIKey:         v.GetString("MINDBODY_API_KEY"),
		SiteID:         v.GetString("MINDBODY_SITE_ID"),
		Username:       v.GetString("MINDBODY_USERNAME"),
		Password:       v.GetString("MINDBODY_PASSWORD"),
		PageSize:       v.GetInt("MINDBODY_PAGE_SIZE"),
		RequestTimeout: parseDuration(v.GetString("MINDBODY_REQUEST_TIMEOUT"), 60*time.Second),
		TokenTTL:       parseDuration(v.GetString("MINDBODY_TOKEN_TTL"), 24*time.Hour),
	}

	cfg.Import = ImportConfig{
		QueueSize:         v.GetInt("IMPORT_QUEUE_SIZE"),
		HeartbeatInterval: parseDuration(v.GetString("IMPORT_HEARTBEAT_INTERVAL"), time.Minute),
		WatchdogInterval:  parseDuration(v.GetString("IMPORT_WATCHDOG_INTERVAL"), 2*time.Minute),
		StaleThreshold:    parseDuration(v.GetString("IMPORT_STALE_THRESHOLD"), 10*time.Minute),
		DefaultWindowDays: v.GetInt("IMPORT_DEFAULT_WINDOW_DAYS"),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:       v.GetBool("ENABLE_SCHEDULER"),
		CronSpec:      v.GetString("SCHEDULER_CRON"),
		Organizations: splitAndTrim(v.GetString("SCHEDULER_ORGANIZATIONS")),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "studio_insights")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MINDBODY_BASE_URL", "https://api.mindbodyonline.com/public/v6")
	v.SetDefault("MINDBODY_API_KEY", "")
	v.SetDefault("MINDBODY_SITE_ID", "")
	v.SetDefault("MINDBODY_USERNAME", "")
	v.SetDefault("MINDBODY_PASSWORD", "")
	v.SetDefault("MINDBODY_PAGE_SIZE", 200)
	v.SetDefault("MINDBODY_REQUEST_TIMEOUT", "60s")
	v.SetDefault("MINDBODY_TOKEN_TTL", "24h")

	v.SetDefault("IMPORT_QUEUE_SIZE", 16)
	v.SetDefault("IMPORT_HEARTBEAT_INTERVAL", "1m")
	v.SetDefault("IMPORT_WATCHDOG_INTERVAL", "2m")
	v.SetDefault("IMPORT_STALE_THRESHOLD", "10m")
	v.SetDefault("IMPORT_DEFAULT_WINDOW_DAYS", 7)

	v.SetDefault("ENABLE_SCHEDULER", false)
	v.SetDefault("SCHEDULER_CRON", "0 3 * * *")
	v.SetDefault("SCHEDULER_ORGANIZATIONS", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

package config

import (
	"os"
	"strings"
	"time"

	"github.com/communityconnect/connect/backend/go-services/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Mail      MailConfig
	Storage   StorageConfig
	OIDC      OIDCConfig
	ClientURL string
	// StatsCacheTTL bounds how long admin statistics are served from Redis.
	StatsCacheTTL time.Duration
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (s ServerConfig) IsDevelopment() bool { return s.Environment == "development" }

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

type MailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	FromName string
	Timeout  time.Duration
}

// Configured reports whether credentials for the mail channel are present.
func (m MailConfig) Configured() bool { return m.User != "" && m.Password != "" && m.Host != "" }

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	PublicURL string
}

type OIDCConfig struct {
	Issuer        string
	ClientID      string
	AllowInsecure bool
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5000")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("MONGODB_DATABASE", "community_connect")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_RPS", 0.25)
	viper.SetDefault("RATE_LIMIT_BURST", 200)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 900)
	viper.SetDefault("EMAIL_HOST", "smtp.gmail.com")
	viper.SetDefault("EMAIL_PORT", 587)
	viper.SetDefault("EMAIL_FROM_NAME", "Community Connect")
	viper.SetDefault("EMAIL_TIMEOUT_SECONDS", 15)
	viper.SetDefault("MINIO_BUCKET", "community-connect")
	viper.SetDefault("CLIENT_URL", "http://localhost:3000")
	viper.SetDefault("STATS_CACHE_TTL_SECONDS", 30)

	port := viper.GetString("SERVER_PORT")
	// PORT is what most hosting platforms inject
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         port,
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Mail: MailConfig{
			Host:     viper.GetString("EMAIL_HOST"),
			Port:     viper.GetInt("EMAIL_PORT"),
			User:     viper.GetString("EMAIL_USER"),
			Password: os.Getenv("EMAIL_PASS"),
			FromName: viper.GetString("EMAIL_FROM_NAME"),
			Timeout:  time.Duration(viper.GetInt("EMAIL_TIMEOUT_SECONDS")) * time.Second,
		},
		Storage: StorageConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
			PublicURL: viper.GetString("MINIO_PUBLIC_URL"),
		},
		OIDC: OIDCConfig{
			Issuer:        viper.GetString("OIDC_ISSUER"),
			ClientID:      viper.GetString("OIDC_CLIENT_ID"),
			AllowInsecure: strings.EqualFold(strings.TrimSpace(viper.GetString("ALLOW_INSECURE_TOKEN")), "true"),
		},
		ClientURL:     strings.TrimRight(viper.GetString("CLIENT_URL"), "/"),
		StatsCacheTTL: time.Duration(viper.GetInt("STATS_CACHE_TTL_SECONDS")) * time.Second,
	}

	if cfg.MongoDB.URI == "" {
		logger.Warn("MONGODB_URI is not set; reports and users will be kept in memory")
	}
	if !cfg.Mail.Configured() {
		logger.Warn("EMAIL_USER/EMAIL_PASS not set; notifications will be simulated")
	}

	return cfg, nil
}

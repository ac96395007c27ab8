package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the server configuration read from the environment.
type Config struct {
	Env      string `env:"ENV,default=development"`
	Port     string `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL"`

	JWTSecret string `env:"JWT_SECRET,required"`

	DBType      string `env:"DB_TYPE,default=postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBHost      string `env:"DB_HOST"`
	DBPort      string `env:"DB_PORT,default=5432"`
	DBName      string `env:"DB_NAME"`
	DBUser      string `env:"DB_USER"`
	DBPassword  string `env:"DB_PASSWORD"`

	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	RedisURL       string `env:"REDIS_URL"`

	CacheTTL  time.Duration `env:"CACHE_TTL,default=30s"`
	CacheSize int           `env:"CACHE_SIZE,default=1024"`

	WSMessagesPerMinute int `env:"WS_MESSAGES_PER_MINUTE,default=120"`
}

// Load reads an optional .env file and decodes the environment.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, err
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
		if cfg.Env == "development" {
			cfg.LogLevel = "debug"
		}
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// DSN returns DATABASE_URL, or builds a postgres URL from the DB_* parts.
func (c *Config) DSN() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}
	if c.DBType == "memory" {
		return "", nil
	}
	if c.DBHost == "" || c.DBName == "" || c.DBUser == "" {
		return "", errors.New("database connection details missing: set DATABASE_URL or DB_HOST, DB_NAME and DB_USER")
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	), nil
}

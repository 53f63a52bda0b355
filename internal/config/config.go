package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"tienda"`
	ServerPort  int    `env:"SERVER_PORT"  envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL"`

	JWTKey             string `env:"JWT_KEY"`
	JWTIssuer          string `env:"JWT_ISSUER"`
	JWTAudience        string `env:"JWT_AUDIENCE"`
	JWTDurationMinutes int    `env:"JWT_DURATION_MINUTES" envDefault:"15"`
	RefreshTokenDays   int    `env:"REFRESH_TOKEN_DAYS"   envDefault:"10"`
	CookieSecure       bool   `env:"COOKIE_SECURE"        envDefault:"true"`
	PasswordHasher     string `env:"PASSWORD_HASHER"      envDefault:"bcrypt"`

	KafkaBrokers   []string `env:"KAFKA_BROKERS"    envSeparator:","`
	EventQueueSize int      `env:"EVENT_QUEUE_SIZE" envDefault:"256"`

	ESURL      string `env:"ES_URL"`
	ESUser     string `env:"ES_USER"`
	ESPassword string `env:"ES_PASSWORD"`
	ESIndex    string `env:"ES_INDEX" envDefault:"products"`

	RateLimitPerSecond float64  `env:"RATE_LIMIT_PER_SECOND" envDefault:"0.2"`
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST"      envDefault:"2"`
	CORSOrigins        []string `env:"CORS_ORIGINS"          envSeparator:"," envDefault:"*"`

	AdminUsername string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	AdminEmail    string `env:"ADMIN_EMAIL"    envDefault:"admin@example.com"`
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTDurationMinutes) * time.Minute
}

func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenDays) * 24 * time.Hour
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	var errs []error
	required := map[string]string{
		"DATABASE_URL": c.DatabaseURL,
		"JWT_KEY":      c.JWTKey,
		"JWT_ISSUER":   c.JWTIssuer,
		"JWT_AUDIENCE": c.JWTAudience,
	}
	for _, name := range []string{"DATABASE_URL", "JWT_KEY", "JWT_ISSUER", "JWT_AUDIENCE"} {
		if required[name] == "" {
			errs = append(errs, fmt.Errorf("missing required env %s", name))
		}
	}
	if c.JWTDurationMinutes <= 0 {
		errs = append(errs, errors.New("JWT_DURATION_MINUTES must be positive"))
	}
	if c.RefreshTokenDays <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_DAYS must be positive"))
	}
	return errors.Join(errs...)
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

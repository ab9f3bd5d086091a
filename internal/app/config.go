package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Env       string   `env:"APP_ENV"    envDefault:"dev"`
	LogLevel  string   `env:"LOG_LEVEL"`
	HTTPAddr  string   `env:"HTTP_ADDR"  envDefault:":8080"`
	CORSAllow []string `env:"CORS_ALLOW" envDefault:"*" envSeparator:","`

	AdminKey      string        `env:"ADMIN_KEY,required,notEmpty"`
	AdminTokenTTL time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"1h"`

	GuardInterval time.Duration `env:"GUARD_INTERVAL" envDefault:"750ms"`
	SendQueue     int           `env:"WS_SEND_QUEUE"  envDefault:"256"`
	TrustProxy    bool          `env:"TRUST_PROXY"    envDefault:"false"` // honor X-Forwarded-For, only behind a proxy

	RateLimit  int           `env:"RATE_LIMIT"  envDefault:"60"` // requests per window per IP
	RateWindow time.Duration `env:"RATE_WINDOW" envDefault:"1m"`

	RedisAddr string `env:"REDIS_ADDR"` // host:port, empty disables the event stream
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig parses the environment into a Config and validates it
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the relay cannot run with
func (c Config) Validate() error {
	switch {
	case c.GuardInterval <= 0:
		return errors.New("GUARD_INTERVAL must be positive")
	case c.SendQueue <= 0:
		return errors.New("WS_SEND_QUEUE must be positive")
	case c.RateLimit <= 0 || c.RateWindow <= 0:
		return errors.New("RATE_LIMIT and RATE_WINDOW must be positive")
	}
	return nil
}

// String hides the admin key so the config can be logged
func (c Config) String() string {
	return fmt.Sprintf("env=%s addr=%s cors=%v guard=%s queue=%d trust_proxy=%t rate=%d/%s redis=%q",
		c.Env, c.HTTPAddr, c.CORSAllow, c.GuardInterval, c.SendQueue, c.TrustProxy, c.RateLimit, c.RateWindow, c.RedisAddr)
}

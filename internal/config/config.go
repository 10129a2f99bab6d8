// Package config содержит логику чтения конфигурации сервиса кундали.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	defaultRunAddress   = "localhost:8080"
	defaultAstrologyURL = "https://api.prokerala.com"
)

// Config содержит параметры конфигурации сервиса кундали.
type Config struct {
	RunAddress   string `env:"RUN_ADDRESS"`
	Port         string `env:"PORT"`
	DatabaseURI  string `env:"DATABASE_URI"`
	AstrologyURL string `env:"ASTROLOGY_API_URL"`

	ProviderClientID     string        `env:"PROKERALA_CLIENT_ID"`
	ProviderClientSecret string        `env:"PROKERALA_CLIENT_SECRET"`
	ProviderTimeout      time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	ProviderRetryMax     int           `env:"PROVIDER_RETRY_MAX" envDefault:"2"`
	ProviderTokenCache   bool          `env:"PROVIDER_TOKEN_CACHE" envDefault:"true"`

	PaymentKeyID     string `env:"RAZORPAY_KEY_ID"`
	PaymentKeySecret string `env:"RAZORPAY_KEY_SECRET"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// .env необязателен; уже заданные переменные окружения он не перезаписывает.
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envAstrologyURL := cfg.AstrologyURL

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.AstrologyURL, "p", defaultAstrologyURL, "astrology provider base URL")

	flag.Parse()

	switch {
	case envRunAddress != "":
		cfg.RunAddress = envRunAddress
	case cfg.Port != "":
		cfg.RunAddress = ":" + cfg.Port
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envAstrologyURL != "" {
		cfg.AstrologyURL = envAstrologyURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.AstrologyURL == "" {
		cfg.AstrologyURL = defaultAstrologyURL
	}

	return cfg, nil
}

// Validate проверяет, что заданы все учётные данные внешних сервисов.
func (c *Config) Validate() error {
	var errs []error

	if c.PaymentKeyID == "" {
		errs = append(errs, errors.New("RAZORPAY_KEY_ID is required"))
	}
	if c.PaymentKeySecret == "" {
		errs = append(errs, errors.New("RAZORPAY_KEY_SECRET is required"))
	}
	if c.ProviderClientID == "" {
		errs = append(errs, errors.New("PROKERALA_CLIENT_ID is required"))
	}
	if c.ProviderClientSecret == "" {
		errs = append(errs, errors.New("PROKERALA_CLIENT_SECRET is required"))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}
	if c.ProviderRetryMax < 0 {
		errs = append(errs, errors.New("PROVIDER_RETRY_MAX must not be negative"))
	}
	if _, err := c.ZapLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ZapLevel возвращает уровень логирования, заданный в LOG_LEVEL.
func (c *Config) ZapLevel() (zap.AtomicLevel, error) {
	lvl, err := zap.ParseAtomicLevel(c.LogLevel)
	if err != nil {
		return lvl, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

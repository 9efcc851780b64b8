// Package config содержит логику чтения конфигурации сервиса магазина.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса магазина.
type Config struct {
	RunAddress    string `env:"RUN_ADDRESS"`
	DatabaseURI   string `env:"DATABASE_URI"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	PesapalBaseURL        string `env:"PESAPAL_BASE_URL"`
	PesapalConsumerKey    string `env:"PESAPAL_CONSUMER_KEY"`
	PesapalConsumerSecret string `env:"PESAPAL_CONSUMER_SECRET"`

	PayPalBaseURL  string `env:"PAYPAL_BASE_URL"`
	PayPalClientID string `env:"PAYPAL_CLIENT_ID"`
	PayPalSecret   string `env:"PAYPAL_SECRET"`

	AuthSecret string `env:"AUTH_SECRET"`

	SMTPAddress string `env:"SMTP_ADDRESS"`
	SMTPFrom    string `env:"SMTP_FROM"`

	// Ставка налога в базисных пунктах: 800 = 8%.
	TaxRateBP int64 `env:"TAX_RATE_BP"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPublicBaseURL := cfg.PublicBaseURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PublicBaseURL, "b", "http://localhost:3000", "public base URL for gateway callbacks")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPublicBaseURL != "" {
		cfg.PublicBaseURL = envPublicBaseURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:3000"
	}
	if cfg.TaxRateBP == 0 {
		cfg.TaxRateBP = 800
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "craftstore-secret"
	}

	return cfg, nil
}

// Package config содержит логику чтения конфигурации сервиса coinvault.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress = "localhost:8080"
	defaultRPCURL     = "https://worldchain-mainnet.g.alchemy.com/public"
	defaultSellRate   = 1100
	defaultSpinReset  = 10 * time.Second
)

// Config содержит параметры конфигурации сервиса coinvault.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	Port        string `env:"PORT"`
	DatabaseURI string `env:"DATABASE_URI"`
	RedisURL    string `env:"REDIS_URL"`

	RPCURL           string `env:"RPC_URL"`
	SignerPrivateKey string `env:"SIGNER_PRIVATE_KEY"`
	VaultAddress     string `env:"CONTRACT_ADDRESS"`
	// SellRate — сколько монет стоит одна единица нативной валюты сети.
	SellRate int64 `env:"SELL_RATE_COIN_PER_WLD"`

	PayoutContractAddress string        `env:"PAYOUT_CONTRACT_ADDRESS"`
	PayoutPrivateKey      string        `env:"PAYOUT_PRIVATE_KEY"`
	SpinResetDelay        time.Duration `env:"SPIN_RESET_DELAY"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRPCURL := cfg.RPCURL
	envSellRate := cfg.SellRate

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI (empty for in-memory ledger)")
	flag.StringVar(&cfg.RPCURL, "r", defaultRPCURL, "chain RPC endpoint")
	flag.Int64Var(&cfg.SellRate, "rate", defaultSellRate, "coins per one native unit")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	} else if cfg.Port != "" {
		cfg.RunAddress = ":" + cfg.Port
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRPCURL != "" {
		cfg.RPCURL = envRPCURL
	}
	if envSellRate != 0 {
		cfg.SellRate = envSellRate
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.SpinResetDelay == 0 {
		cfg.SpinResetDelay = defaultSpinReset
	}

	return cfg, nil
}

// Validate проверяет, что заданы параметры, без которых сервис не может выдавать заявки на вывод.
func (c *Config) Validate() error {
	var errs []error
	if c.SignerPrivateKey == "" {
		errs = append(errs, errors.New("SIGNER_PRIVATE_KEY is required"))
	}
	if c.VaultAddress == "" {
		errs = append(errs, errors.New("CONTRACT_ADDRESS is required"))
	}
	if c.SellRate <= 0 {
		errs = append(errs, fmt.Errorf("sell rate must be positive, got %d", c.SellRate))
	}
	return errors.Join(errs...)
}

// MatchmakingEnabled сообщает, настроен ли контракт выплат для розыгрыша.
func (c *Config) MatchmakingEnabled() bool {
	return c.PayoutContractAddress != "" && c.PayoutPrivateKey != ""
}

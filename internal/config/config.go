package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"chainpay/internal/chain"
	"chainpay/internal/pricing"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string
	JWTSecret   string
	Env         string

	BTCTreasuryAddress string
	SOLTreasuryAddress string
	MempoolAPIURL      string
	SolanaRPCURL       string
	ChainQueryTimeout  time.Duration
	// CHAIN_PROXY_ADDR, socks5 для запросов к эксплореру и RPC
	ChainProxyAddr string

	PaymentIntentTTL time.Duration
	PlanPrices       pricing.PlanPrices
	BinanceAPIURL    string

	MetricsUser     string
	MetricsPassword string
	CORSOrigins     []string
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	// .env не обязателен, в проде переменные приходят из окружения
	_ = godotenv.Load()

	var errs []error

	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		Env:                getEnv("APP_ENV", "development"),
		BTCTreasuryAddress: strings.TrimSpace(os.Getenv("BTC_TREASURY_ADDRESS")),
		SOLTreasuryAddress: strings.TrimSpace(os.Getenv("SOL_TREASURY_ADDRESS")),
		MempoolAPIURL:      getEnv("MEMPOOL_API_URL", "https://mempool.space/api"),
		SolanaRPCURL:       getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		ChainProxyAddr:     os.Getenv("CHAIN_PROXY_ADDR"),
		BinanceAPIURL:      os.Getenv("BINANCE_API_URL"),
		MetricsUser:        getEnv("METRICS_USER", "metrics"),
		MetricsPassword:    os.Getenv("METRICS_PASSWORD"),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}

	var err error
	if cfg.ChainQueryTimeout, err = getDuration("CHAIN_QUERY_TIMEOUT", chain.DefaultQueryTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.PaymentIntentTTL, err = getDuration("PAYMENT_INTENT_TTL", 24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.PlanPrices, err = pricing.ParsePlanPrices(getEnv("PLAN_PRICES_USD", "PRO=19.99,ELITE=49.99")); err != nil {
		errs = append(errs, fmt.Errorf("PLAN_PRICES_USD: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.BTCTreasuryAddress == "" && c.SOLTreasuryAddress == "" {
		errs = append(errs, errors.New("at least one of BTC_TREASURY_ADDRESS, SOL_TREASURY_ADDRESS is required"))
	}
	if c.ChainQueryTimeout <= 0 {
		errs = append(errs, errors.New("CHAIN_QUERY_TIMEOUT must be positive"))
	}
	if c.PaymentIntentTTL <= 0 {
		errs = append(errs, errors.New("PAYMENT_INTENT_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// Treasuries адреса казначейства по сетям, пустые не включаются
func (c *Config) Treasuries() map[chain.Chain]string {
	t := make(map[chain.Chain]string, 2)
	if c.BTCTreasuryAddress != "" {
		t[chain.BTC] = c.BTCTreasuryAddress
	}
	if c.SOLTreasuryAddress != "" {
		t[chain.SOL] = c.SOLTreasuryAddress
	}
	return t
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

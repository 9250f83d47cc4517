package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// GatewayConfig is the service-level configuration, read from the
// environment. Chain and IPFS settings live in the shared TOML file named
// by MARKET_GATEWAY_CONFIG.
type GatewayConfig struct {
	ListenAddress      string
	ConfigPath         string
	DatabasePath       string
	Environment        string
	KeystorePassphrase string

	AuthEnabled  bool
	AuthSecret   string
	AuthIssuer   string
	AuthAudience string

	AllowedOrigins []string

	ReadRatePerMinute   float64
	ActionRatePerMinute float64

	RequestTimeout time.Duration
}

const (
	defaultListenAddress  = ":8445"
	defaultDatabasePath   = "market-gateway.db"
	defaultConfigPath     = "rentchain.toml"
	defaultRequestTimeout = 30 * time.Second
	defaultReadRate       = 300
	defaultActionRate     = 30
)

func LoadConfigFromEnv() (GatewayConfig, error) {
	cfg := GatewayConfig{
		ListenAddress:       envOr("MARKET_GATEWAY_LISTEN", defaultListenAddress),
		ConfigPath:          envOr("MARKET_GATEWAY_CONFIG", defaultConfigPath),
		DatabasePath:        envOr("MARKET_GATEWAY_DB", defaultDatabasePath),
		Environment:         envOr("MARKET_GATEWAY_ENV", "dev"),
		KeystorePassphrase:  os.Getenv("MARKET_GATEWAY_KEYSTORE_PASSPHRASE"),
		AuthSecret:          os.Getenv("MARKET_GATEWAY_AUTH_SECRET"),
		AuthIssuer:          os.Getenv("MARKET_GATEWAY_AUTH_ISSUER"),
		AuthAudience:        os.Getenv("MARKET_GATEWAY_AUTH_AUDIENCE"),
		ReadRatePerMinute:   defaultReadRate,
		ActionRatePerMinute: defaultActionRate,
		RequestTimeout:      defaultRequestTimeout,
	}
	cfg.AuthEnabled = cfg.AuthSecret != ""
	if origins := strings.TrimSpace(os.Getenv("MARKET_GATEWAY_ALLOWED_ORIGINS")); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}
	if raw := os.Getenv("MARKET_GATEWAY_READ_RATE"); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil || rate <= 0 {
			return cfg, fmt.Errorf("invalid MARKET_GATEWAY_READ_RATE %q", raw)
		}
		cfg.ReadRatePerMinute = rate
	}
	if raw := os.Getenv("MARKET_GATEWAY_ACTION_RATE"); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil || rate <= 0 {
			return cfg, fmt.Errorf("invalid MARKET_GATEWAY_ACTION_RATE %q", raw)
		}
		cfg.ActionRatePerMinute = rate
	}
	if raw := os.Getenv("MARKET_GATEWAY_REQUEST_TIMEOUT"); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil || timeout <= 0 {
			return cfg, fmt.Errorf("invalid MARKET_GATEWAY_REQUEST_TIMEOUT %q", raw)
		}
		cfg.RequestTimeout = timeout
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

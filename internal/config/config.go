package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/cohortex/internal/domain"
)

// Config holds all runtime configuration for the settlement service.
type Config struct {
	Port            int
	LogLevel        string
	LogFile         string // empty: stdout only
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	PriceTTL          time.Duration
	SettlementTimeout time.Duration
	ReconcileInterval time.Duration
	ReconcileLookback time.Duration
	Fees              domain.FeePolicy

	LedgerDSN        string // empty: in-memory ledger
	RedisAddr        string // empty: in-process price cache
	RedisPassword    string
	RedisDB          int
	GatewayURL       string // empty: paper gateway
	TreasuryWallet   string
	CohortsFile      string
	SubscriberBuffer int
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	priceTTL, err := getPositiveDuration("PRICE_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_TTL: %w", err)
	}

	settlementTimeout, err := getPositiveDuration("SETTLEMENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_TIMEOUT: %w", err)
	}

	reconcileInterval, err := getPositiveDuration("RECONCILE_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_INTERVAL: %w", err)
	}

	reconcileLookback, err := getPositiveDuration("RECONCILE_LOOKBACK", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILE_LOOKBACK: %w", err)
	}

	defaults := domain.DefaultFeePolicy()
	baseRate, err := getRate("FEE_BASE_RATE", defaults.BaseRate)
	if err != nil {
		return nil, fmt.Errorf("invalid FEE_BASE_RATE: %w", err)
	}
	surchargeRate, err := getRate("FEE_SURCHARGE_RATE", defaults.SurchargeRate)
	if err != nil {
		return nil, fmt.Errorf("invalid FEE_SURCHARGE_RATE: %w", err)
	}
	threshold, err := getInt("FEE_SURCHARGE_THRESHOLD", int(defaults.SurchargeThreshold))
	if err != nil {
		return nil, fmt.Errorf("invalid FEE_SURCHARGE_THRESHOLD: %w", err)
	}
	if threshold < 0 {
		return nil, fmt.Errorf("invalid FEE_SURCHARGE_THRESHOLD: %d, must not be negative", threshold)
	}

	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	treasury := getStr("TREASURY_WALLET", "treasury")

	subscriberBuffer, err := getInt("SUBSCRIBER_BUFFER", 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SUBSCRIBER_BUFFER: %w", err)
	}
	if subscriberBuffer <= 0 {
		return nil, fmt.Errorf("invalid SUBSCRIBER_BUFFER: %d, must be positive", subscriberBuffer)
	}

	return &Config{
		Port:              port,
		LogLevel:          logLevel,
		LogFile:           os.Getenv("LOG_FILE"),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ShutdownTimeout:   shutdownTimeout,
		PriceTTL:          priceTTL,
		SettlementTimeout: settlementTimeout,
		ReconcileInterval: reconcileInterval,
		ReconcileLookback: reconcileLookback,
		Fees: domain.FeePolicy{
			BaseRate:           baseRate,
			SurchargeRate:      surchargeRate,
			SurchargeThreshold: int64(threshold),
		},
		LedgerDSN:        os.Getenv("LEDGER_DSN"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          redisDB,
		GatewayURL:       os.Getenv("GATEWAY_URL"),
		TreasuryWallet:   treasury,
		CohortsFile:      getStr("COHORTS_FILE", "cohorts.yaml"),
		SubscriberBuffer: subscriberBuffer,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func getPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", d)
	}
	return d, nil
}

// getRate parses a fractional rate such as "0.02".
func getRate(key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, fmt.Errorf("%s must be in [0, 1)", v)
	}
	return d, nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

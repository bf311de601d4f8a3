package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"darkbet-backend/internal/market"
)

// Config holds all configuration for the darkbet backend
type Config struct {
	Env         string // "local", "dev", "prod"
	ServiceName string

	// Server settings
	ServerPort  string
	MetricsPort string

	// Identities
	PrivateKey      string
	OwnerAddress    string
	ResolverAddress string

	// Resolution
	ResolverURL        string
	ResolverTimeout    time.Duration
	ResolutionInterval time.Duration

	// Protocol parameters
	MinMarketWindow     time.Duration
	MaxMarketWindow     time.Duration
	MinBet              string
	PriceConstant       string
	FeeBps              int
	RevealTimeout       time.Duration
	CancelRefundFeeBps  int
	TimeoutRefundFeeBps int

	// Event sinks; empty disables the sink
	PostgresDSN        string
	RedisAddr          string
	RedisEventsChannel string
	KafkaBrokers       string // "a:9092,b:9092"
	KafkaTopicEvents   string

	AuthMaxSkew time.Duration
	EventBuffer int
}

// Load reads configuration from environment variables, after merging a
// .env file when one is present
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env:         getEnv("ENV", "local"),
		ServiceName: getEnv("SERVICE_NAME", "darkbet-backend"),

		ServerPort:  getEnv("SERVER_PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9095"),

		PrivateKey:      getEnv("PRIVATE_KEY", ""),
		OwnerAddress:    getEnv("OWNER_ADDRESS", ""),
		ResolverAddress: getEnv("RESOLVER_ADDRESS", ""),

		ResolverURL:        getEnv("RESOLVER_URL", ""),
		ResolverTimeout:    getEnvDuration("RESOLVER_TIMEOUT", 30*time.Second),
		ResolutionInterval: getEnvDuration("RESOLUTION_INTERVAL", time.Minute),

		MinMarketWindow:     getEnvDuration("MIN_MARKET_WINDOW", 15*time.Minute),
		MaxMarketWindow:     getEnvDuration("MAX_MARKET_WINDOW", 365*24*time.Hour),
		MinBet:              getEnv("MIN_BET", "0.01"),
		PriceConstant:       getEnv("PRICE_CONSTANT", "0.01"),
		FeeBps:              getEnvInt("FEE_BPS", 1000),
		RevealTimeout:       getEnvDuration("REVEAL_TIMEOUT", time.Hour),
		CancelRefundFeeBps:  getEnvInt("CANCEL_REFUND_FEE_BPS", 0),
		TimeoutRefundFeeBps: getEnvInt("TIMEOUT_REFUND_FEE_BPS", 0),

		PostgresDSN:        getEnv("POSTGRES_DSN", ""),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisEventsChannel: getEnv("REDIS_EVENTS_CHANNEL", "darkbet_events"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		KafkaTopicEvents:   getEnv("KAFKA_TOPIC_EVENTS", "darkbet.market-events"),

		AuthMaxSkew: getEnvDuration("AUTH_MAX_SKEW", 5*time.Minute),
		EventBuffer: getEnvInt("EVENT_BUFFER", 1024),
	}
}

// Params builds the protocol parameters
func (c *Config) Params() (market.Params, error) {
	minBet, err := market.ParseEther(c.MinBet)
	if err != nil {
		return market.Params{}, fmt.Errorf("MIN_BET: %w", err)
	}
	k, err := market.ParseEther(c.PriceConstant)
	if err != nil {
		return market.Params{}, fmt.Errorf("PRICE_CONSTANT: %w", err)
	}
	p := market.Params{
		MinWindow:           c.MinMarketWindow,
		MaxWindow:           c.MaxMarketWindow,
		MinBet:              minBet,
		PriceConstant:       k,
		FeeBps:              int64(c.FeeBps),
		RevealTimeout:       c.RevealTimeout,
		CancelRefundFeeBps:  int64(c.CancelRefundFeeBps),
		TimeoutRefundFeeBps: int64(c.TimeoutRefundFeeBps),
	}
	if err := p.Validate(); err != nil {
		return market.Params{}, err
	}
	return p, nil
}

// Validate checks the settings that have no usable default
func (c *Config) Validate() error {
	for key, addr := range map[string]string{
		"OWNER_ADDRESS":    c.OwnerAddress,
		"RESOLVER_ADDRESS": c.ResolverAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s: invalid address %q", key, addr)
		}
	}
	if c.OwnerAddress == "" && c.PrivateKey == "" {
		return fmt.Errorf("OWNER_ADDRESS or PRIVATE_KEY is required")
	}
	if c.ResolutionInterval <= 0 {
		return fmt.Errorf("RESOLUTION_INTERVAL must be positive")
	}
	_, err := c.Params()
	return err
}

// Brokers splits KafkaBrokers into addresses
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

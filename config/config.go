package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseURL      string
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration (optional, caching degrades gracefully without it)
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// Options firehose
	FirehoseWSURL  string
	FirehoseAPIKey string

	// Broker credentials, one pair per paper account
	AccountA      BrokerCredentials
	AccountB      BrokerCredentials
	BrokerBaseURL string

	// Market session
	Timezone        string
	BenchmarkSymbol string

	// Ops surface
	APIPort     int
	WebhookURLs []string

	// Detection and trading parameters
	Detector DetectorConfig
	Trading  TradingConfig
}

// BrokerCredentials holds one account's API key pair
type BrokerCredentials struct {
	APIKey    string
	APISecret string
}

// DetectorConfig holds volume anomaly detection parameters
type DetectorConfig struct {
	WindowSeconds        int
	ScanIntervalSeconds  int
	VolumeThreshold      float64 // window notional / baseline ratio that triggers
	CooldownMinutes      int
	MinNotional          float64
	BaselineFallback     float64
	BaselineLookbackDays int
	MaxWindowEntries     int // per-symbol soft cap, oldest dropped beyond this
}

// TradingConfig holds position management parameters shared by both accounts
type TradingConfig struct {
	MaxConcurrentA           int
	MaxConcurrentB           int
	PositionNotionalCap      float64
	PositionPct              float64 // fraction of account equity per position
	HardStopPct              float64 // negative, e.g. -0.02
	MinScore                 int
	SectorCap                int
	ExitTime                 string // "15:55" local market time
	EngulfingLookbackMinutes int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		DatabaseHost:     getEnv("DB_HOST", "localhost"),
		DatabasePort:     getEnv("DB_PORT", "5432"),
		DatabaseName:     getEnv("DB_NAME", "uoa_scanner"),
		DatabaseUser:     getEnv("DB_USER", "uoa"),
		DatabasePassword: getEnv("DB_PASSWORD", ""),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		FirehoseWSURL:  getEnv("FIREHOSE_WS_URL", "wss://socket.polygon.io/options"),
		FirehoseAPIKey: getEnv("FIREHOSE_API_KEY", ""),

		AccountA: BrokerCredentials{
			APIKey:    getEnv("APCA_API_KEY_ID", ""),
			APISecret: getEnv("APCA_API_SECRET_KEY", ""),
		},
		AccountB: BrokerCredentials{
			APIKey:    getEnv("APCA_API_KEY_ID_B", ""),
			APISecret: getEnv("APCA_API_SECRET_KEY_B", ""),
		},
		BrokerBaseURL: getEnv("APCA_API_BASE_URL", "https://paper-api.alpaca.markets"),

		Timezone:        getEnv("MARKET_TIMEZONE", "America/New_York"),
		BenchmarkSymbol: getEnv("BENCHMARK_SYMBOL", "SPY"),

		APIPort:     getEnvInt("API_PORT", 8080),
		WebhookURLs: splitList(getEnv("WEBHOOK_URLS", "")),

		Detector: DetectorConfig{
			WindowSeconds:        getEnvInt("UOA_WINDOW_SECONDS", 60),
			ScanIntervalSeconds:  getEnvInt("UOA_SCAN_INTERVAL", 10),
			VolumeThreshold:      getEnvFloat("UOA_VOLUME_THRESHOLD", 3.0),
			CooldownMinutes:      getEnvInt("UOA_COOLDOWN_MINUTES", 60),
			MinNotional:          getEnvFloat("UOA_MIN_NOTIONAL", 10_000),
			BaselineFallback:     getEnvFloat("UOA_BASELINE_FALLBACK", 50_000),
			BaselineLookbackDays: getEnvInt("UOA_BASELINE_LOOKBACK_DAYS", 20),
			MaxWindowEntries:     getEnvInt("UOA_MAX_WINDOW_ENTRIES", 10_000),
		},
		Trading: TradingConfig{
			MaxConcurrentA:           getEnvInt("TRADING_MAX_CONCURRENT_A", 5),
			MaxConcurrentB:           getEnvInt("TRADING_MAX_CONCURRENT_B", 5),
			PositionNotionalCap:      getEnvFloat("TRADING_POS_NOTIONAL_CAP", 10_000),
			PositionPct:              getEnvFloat("TRADING_POS_PCT", 0.10),
			HardStopPct:              getEnvFloat("TRADING_HARD_STOP_PCT", -0.02),
			MinScore:                 getEnvInt("TRADING_MIN_SCORE", 10),
			SectorCap:                getEnvInt("TRADING_SECTOR_CAP", 2),
			ExitTime:                 getEnv("TRADING_EXIT_TIME", "15:55"),
			EngulfingLookbackMinutes: getEnvInt("TRADING_ENGULFING_LOOKBACK", 30),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks that the configuration is complete enough to boot.
// Missing credentials are a hard startup failure, not a degraded mode.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" && c.DatabaseHost == "" {
		return fmt.Errorf("either DATABASE_URL or DB_HOST must be set")
	}
	if c.FirehoseAPIKey == "" {
		return fmt.Errorf("FIREHOSE_API_KEY is required")
	}
	if c.AccountA.APIKey == "" || c.AccountA.APISecret == "" {
		return fmt.Errorf("APCA_API_KEY_ID / APCA_API_SECRET_KEY are required for account A")
	}
	if c.AccountB.APIKey == "" || c.AccountB.APISecret == "" {
		return fmt.Errorf("APCA_API_KEY_ID_B / APCA_API_SECRET_KEY_B are required for account B")
	}
	if c.Trading.HardStopPct >= 0 {
		return fmt.Errorf("TRADING_HARD_STOP_PCT must be negative, got %v", c.Trading.HardStopPct)
	}
	if _, _, err := ParseClock(c.Trading.ExitTime); err != nil {
		return fmt.Errorf("invalid TRADING_EXIT_TIME: %w", err)
	}
	return nil
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(s string) (int, int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("clock out of range: %q", s)
	}
	return h, m, nil
}

// getEnv gets an environment variable or returns the default value.
// Values are trimmed of surrounding whitespace including CR; a stray
// carriage return in DATABASE_URL corrupts the socket path otherwise.
func getEnv(key, defaultValue string) string {
	value := strings.Trim(os.Getenv(key), " \t\r\n")
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

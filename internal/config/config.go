package config

import (
	"github.com/spf13/viper"
)

// Config holds all runtime configuration loaded from environment variables.
// The kiosk daemon must be able to start fully offline, so every remote
// setting has a local default.
type Config struct {
	// Local API server (consumed by the kiosk UI process)
	Port int    `mapstructure:"PORT"`
	Env  string `mapstructure:"APP_ENV"` // development | production

	// Upstream server
	ServerBaseURL string `mapstructure:"SERVER_BASE_URL"`
	APIToken      string `mapstructure:"API_TOKEN"`
	BranchID      string `mapstructure:"BRANCH_ID"`

	// Sync scheduling (seconds)
	HeartbeatIntervalSec int `mapstructure:"HEARTBEAT_INTERVAL_SEC"`
	DeltaIntervalSec     int `mapstructure:"DELTA_INTERVAL_SEC"`
	HeartbeatTimeoutSec  int `mapstructure:"HEARTBEAT_TIMEOUT_SEC"`

	// Transport retry policy
	RetryBaseDelayMs int `mapstructure:"RETRY_BASE_DELAY_MS"`
	MaxHTTPAttempts  int `mapstructure:"MAX_HTTP_ATTEMPTS"`

	// Durable queue
	MaxQueueAttempts int    `mapstructure:"MAX_QUEUE_ATTEMPTS"`
	SQLitePath       string `mapstructure:"SQLITE_PATH"`

	// Redis — DLQ + UI event bridge
	RedisURL string `mapstructure:"REDIS_URL"`
}

// Load reads configuration from environment variables (and optional .env file).
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Sensible defaults for a kiosk booting with no connectivity
	viper.SetDefault("PORT", 8400)
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("SERVER_BASE_URL", "https://pos.example.com/api")
	viper.SetDefault("BRANCH_ID", "main")
	viper.SetDefault("HEARTBEAT_INTERVAL_SEC", 30)
	viper.SetDefault("DELTA_INTERVAL_SEC", 300)
	viper.SetDefault("HEARTBEAT_TIMEOUT_SEC", 5)
	viper.SetDefault("RETRY_BASE_DELAY_MS", 1000)
	viper.SetDefault("MAX_HTTP_ATTEMPTS", 3)
	viper.SetDefault("MAX_QUEUE_ATTEMPTS", 3)
	viper.SetDefault("SQLITE_PATH", "kioskpos.db")
	viper.SetDefault("REDIS_URL", "redis://localhost:6379/0")

	// Optional .env file for local development — does not fail if missing
	_ = viper.ReadInConfig()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

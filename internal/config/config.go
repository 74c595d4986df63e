package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
// SMTP設定はここには含まれない（設定ストアからサイクルごとに読み込む）。
type Config struct {
	// Database
	DatabaseURL string

	// Poll
	PollInterval      time.Duration
	PollMaxConcurrent int

	// Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Notify
	NotifyTimeout    time.Duration
	NotifyMaxRetries int

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variable is not set: DATABASE_URL")
	}

	// Optional fields with defaults
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", 5*time.Minute)
	cfg.PollMaxConcurrent = getEnvInt("POLL_MAX_CONCURRENT", 8)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 15*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.NotifyTimeout = getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second)
	cfg.NotifyMaxRetries = getEnvInt("NOTIFY_MAX_RETRIES", 3)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

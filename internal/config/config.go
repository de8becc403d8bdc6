// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/feedsync/internal/logger"
	"github.com/hitoshi/feedsync/internal/worker"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL      string
	DBConnectTimeout time.Duration

	// Subscription
	MaxRetries int

	// Fetch
	FetchTimeout         time.Duration
	FetchMaxSize         int64
	FetchMaxConcurrent   int
	FetchRatePerSecond   float64
	FetchUserAgent       string
	FetchSchedule        string
	AllowPrivateNetworks bool

	// Cleanup
	StaleRunTimeout time.Duration
	CleanupSchedule string

	// Server
	ServerPort string

	// Logging
	LogLevel slog.Level
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variables are not set: %v", []string{"DATABASE_URL"})
	}

	// 不正な値はまとめて報告する
	p := &envParser{}

	cfg.DBConnectTimeout = p.getDuration("DB_CONNECT_TIMEOUT", 30*time.Second)
	cfg.MaxRetries = p.getInt("MAX_RETRIES", 5)
	cfg.FetchTimeout = p.getDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = p.getInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchMaxConcurrent = p.getInt("FETCH_MAX_CONCURRENT", 10)
	cfg.FetchRatePerSecond = p.getFloat("FETCH_RATE_PER_SECOND", 5)
	cfg.FetchUserAgent = getEnvString("FETCH_USER_AGENT", "Feedsync/1.0 RSS Reader")
	cfg.FetchSchedule = getEnvString("FETCH_SCHEDULE", "@every 5m")
	cfg.AllowPrivateNetworks = p.getBool("ALLOW_PRIVATE_NETWORKS", false)
	cfg.StaleRunTimeout = p.getDuration("STALE_RUN_TIMEOUT", 30*time.Minute)
	cfg.CleanupSchedule = getEnvString("CLEANUP_SCHEDULE", "@every 10m")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		p.fail("LOG_LEVEL", err)
	}
	cfg.LogLevel = level

	if cfg.MaxRetries <= 0 {
		p.fail("MAX_RETRIES", fmt.Errorf("must be a positive integer, got %d", cfg.MaxRetries))
	}
	if cfg.FetchMaxConcurrent <= 0 {
		p.fail("FETCH_MAX_CONCURRENT", fmt.Errorf("must be a positive integer, got %d", cfg.FetchMaxConcurrent))
	}
	if cfg.FetchTimeout <= 0 {
		p.fail("FETCH_TIMEOUT", fmt.Errorf("must be positive, got %s", cfg.FetchTimeout))
	}
	if cfg.StaleRunTimeout < cfg.FetchTimeout {
		p.fail("STALE_RUN_TIMEOUT", fmt.Errorf("must not be shorter than FETCH_TIMEOUT (%s)", cfg.FetchTimeout))
	}
	if err := worker.ValidateSchedule(cfg.FetchSchedule); err != nil {
		p.fail("FETCH_SCHEDULE", err)
	}
	if err := worker.ValidateSchedule(cfg.CleanupSchedule); err != nil {
		p.fail("CLEANUP_SCHEDULE", err)
	}

	if err := p.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envParser は環境変数を型変換し、失敗を蓄積する。
type envParser struct {
	errs []error
}

func (p *envParser) fail(key string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
}

func (p *envParser) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(p.errs...))
}

func (p *envParser) getInt(key string, defaultVal int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return defaultVal
	}
	return i
}

func (p *envParser) getInt64(key string, defaultVal int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, err)
		return defaultVal
	}
	return i
}

func (p *envParser) getFloat(key string, defaultVal float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return defaultVal
	}
	return f
}

func (p *envParser) getBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return defaultVal
	}
	return b
}

func (p *envParser) getDuration(key string, defaultVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return defaultVal
	}
	return d
}

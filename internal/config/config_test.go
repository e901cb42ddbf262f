package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"HTTP_ADDR", "STORE_DRIVER", "POSTGRES_DSN", "DB_TIMEOUT", "REDIS_ADDR", "REDIS_HOST", "REDIS_PORT",
	"REDIS_DB", "BOT_TOKEN", "TELEGRAM_WEBHOOK_URL", "ADMIN_USER", "ADMIN_PASS", "ADMIN_TELEGRAM_IDS",
	"SESSION_TTL_HOURS", "STATS_CACHE_TTL", "GENERATOR_TIMEOUT", "CHAT_PAY_RATE", "SIGNUP_BONUS",
	"PREMIUM_MULTIPLIER", "REFERRAL_BONUS_RATE", "REFERRAL_BONUS_MODE", "LOG_FORMAT", "LOG_LEVEL",
	"LINK_CODE_TTL", "STATS_RECONCILE_INTERVAL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, 5*time.Second, cfg.DBTimeout)
	assert.Equal(t, "", cfg.RedisAddr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.True(t, cfg.Policy.ChatPayRate.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, cfg.Policy.SignupBonus.Equal(decimal.RequireFromString("10")))
	assert.Equal(t, pricing.ReferralFixed, cfg.Policy.ReferralMode)
	assert.Equal(t, 15*time.Minute, cfg.LinkCodeTTL)
	assert.Equal(t, time.Hour, cfg.StatsReconcileInterval)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"STORE_DRIVER=memory\n"+
			"CHAT_PAY_RATE=0.01\n"+
			"REFERRAL_BONUS_MODE=fraction\n"+
			"REFERRAL_BONUS_RATE=0.1\n"+
			"REDIS_HOST=cache\n"+
			"ADMIN_TELEGRAM_IDS=1, 2;3\n"+
			"LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("CHAT_PAY_RATE", "0.002")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.True(t, cfg.Policy.ChatPayRate.Equal(decimal.RequireFromString("0.002")), "environment wins over file")
	assert.Equal(t, pricing.ReferralFraction, cfg.Policy.ReferralMode)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, []int64{1, 2, 3}, cfg.AdminTelegramIDs)
	assert.True(t, cfg.IsAdminTelegramID(2))
	assert.False(t, cfg.IsAdminTelegramID(4))
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadMissingFileIsFine(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	require.NoError(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "bad decimal", key: "CHAT_PAY_RATE", value: "abc"},
		{name: "negative rate", key: "CHAT_PAY_RATE", value: "-0.1"},
		{name: "multiplier below one", key: "PREMIUM_MULTIPLIER", value: "0.5"},
		{name: "unknown referral mode", key: "REFERRAL_BONUS_MODE", value: "tiered"},
		{name: "unknown driver", key: "STORE_DRIVER", value: "sqlite"},
		{name: "bad duration", key: "DB_TIMEOUT", value: "soon"},
		{name: "bad admin ids", key: "ADMIN_TELEGRAM_IDS", value: "1,x"},
		{name: "bad log format", key: "LOG_FORMAT", value: "xml"},
		{name: "webhook without token", key: "TELEGRAM_WEBHOOK_URL", value: "https://example.com/hook"},
		{name: "admin user without pass", key: "ADMIN_USER", value: "root"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			require.Error(t, err)
		})
	}
}

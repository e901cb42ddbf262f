package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BatmanBruc/chat-earn-ledger/internal/pricing"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPAddr string

	StoreDriver string
	PostgresDSN string
	DBTimeout   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	BotToken         string
	WebhookURL       string
	WebhookSecret    string
	AdminTelegramIDs []int64

	AdminUser string
	AdminPass string

	SessionTTLHours  int
	LinkCodeTTL      time.Duration
	StatsCacheTTL    time.Duration
	GeneratorTimeout time.Duration

	// StatsReconcileInterval of zero disables the periodic reconcile.
	StatsReconcileInterval time.Duration

	Policy pricing.Policy

	LogFormat string
	LogLevel  slog.Level
}

// Load reads an optional env file and then the process environment.
// Variables already present in the environment win over the file.
func Load(path string) (Config, error) {
	if path = strings.TrimSpace(path); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	var errs []error
	cfg := Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", DriverPostgres)),
		PostgresDSN:      getEnv("POSTGRES_DSN", ""),
		RedisAddr:        redisAddr(),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisPrefix:      getEnv("REDIS_PREFIX", "chat_earn"),
		BotToken:         getEnv("BOT_TOKEN", ""),
		WebhookURL:       getEnv("TELEGRAM_WEBHOOK_URL", ""),
		WebhookSecret:    getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		AdminUser:        getEnv("ADMIN_USER", ""),
		AdminPass:        getEnv("ADMIN_PASS", ""),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		DBTimeout:        getDuration("DB_TIMEOUT", 5*time.Second, &errs),
		StatsCacheTTL:    getDuration("STATS_CACHE_TTL", 10*time.Second, &errs),
		LinkCodeTTL:      getDuration("LINK_CODE_TTL", 15*time.Minute, &errs),
		GeneratorTimeout: getDuration("GENERATOR_TIMEOUT", 15*time.Second, &errs),
		RedisDB:          getInt("REDIS_DB", 0, &errs),
		SessionTTLHours:  getInt("SESSION_TTL_HOURS", 24*7, &errs),

		StatsReconcileInterval: getDuration("STATS_RECONCILE_INTERVAL", time.Hour, &errs),
	}

	policy := pricing.DefaultPolicy()
	policy.ChatPayRate = getDecimal("CHAT_PAY_RATE", policy.ChatPayRate, &errs)
	policy.SignupBonus = getDecimal("SIGNUP_BONUS", policy.SignupBonus, &errs)
	policy.PremiumMultiplier = getDecimal("PREMIUM_MULTIPLIER", policy.PremiumMultiplier, &errs)
	policy.ReferralBonusRate = getDecimal("REFERRAL_BONUS_RATE", policy.ReferralBonusRate, &errs)
	mode, err := pricing.ParseReferralMode(getEnv("REFERRAL_BONUS_MODE", ""))
	if err != nil {
		errs = append(errs, err)
	}
	policy.ReferralMode = mode
	cfg.Policy = policy

	ids, err := parseIDs(getEnv("ADMIN_TELEGRAM_IDS", ""))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.AdminTelegramIDs = ids

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER: unknown driver %q", c.StoreDriver))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT: must be text or json, got %q", c.LogFormat))
	}
	if err := c.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.DBTimeout <= 0 {
		errs = append(errs, errors.New("DB_TIMEOUT must be positive"))
	}
	if c.LinkCodeTTL <= 0 {
		errs = append(errs, errors.New("LINK_CODE_TTL must be positive"))
	}
	if c.StatsReconcileInterval < 0 {
		errs = append(errs, errors.New("STATS_RECONCILE_INTERVAL must not be negative"))
	}
	if c.SessionTTLHours <= 0 {
		errs = append(errs, errors.New("SESSION_TTL_HOURS must be positive"))
	}
	if c.WebhookURL != "" && c.BotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_WEBHOOK_URL requires BOT_TOKEN"))
	}
	if (c.AdminUser == "") != (c.AdminPass == "") {
		errs = append(errs, errors.New("ADMIN_USER and ADMIN_PASS must be set together"))
	}
	return errors.Join(errs...)
}

func (c Config) IsAdminTelegramID(id int64) bool {
	for _, v := range c.AdminTelegramIDs {
		if v == id {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return strings.TrimSpace(value)
	}
	return fallback
}

func redisAddr() string {
	if addr := getEnv("REDIS_ADDR", ""); addr != "" {
		return addr
	}
	host := getEnv("REDIS_HOST", "")
	if host == "" {
		return ""
	}
	return host + ":" + getEnv("REDIS_PORT", "6379")
}

func getInt(key string, fallback int, errs *[]error) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func getDecimal(key string, fallback decimal.Decimal, errs *[]error) decimal.Decimal {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func parseIDs(raw string) ([]int64, error) {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t' })
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_TELEGRAM_IDS: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

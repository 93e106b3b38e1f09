package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Config struct {
	Port                     string
	AppEnv                   string
	LogLevel                 string
	AllowedOrigin            string
	DatabaseURL              string
	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	DashboardCacheTTLSeconds int
	KafkaBrokers             []string
	KafkaStockTopic          string
	SessionSecret            string
	SessionTTLMinutes        int
	ValidSizes               []string
	CardTaxPercent           decimal.Decimal
	LowStockThreshold        int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cardTax, err := decimal.NewFromString(getEnv("CARD_TAX_PERCENT", "5"))
	if err != nil || cardTax.IsNegative() {
		cardTax = decimal.NewFromInt(5)
	}

	cfg := Config{
		Port:                     getEnv("PORT", "8080"),
		AppEnv:                   strings.ToLower(getEnv("APP_ENV", "development")),
		LogLevel:                 strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AllowedOrigin:            getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  redisDB,
		DashboardCacheTTLSeconds: getPositiveInt("DASHBOARD_CACHE_TTL_SECONDS", 30),
		KafkaBrokers:             splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaStockTopic:          getEnv("KAFKA_STOCK_TOPIC", "boutique.stock-movements"),
		SessionSecret:            strings.TrimSpace(os.Getenv("SESSION_SECRET")),
		SessionTTLMinutes:        getPositiveInt("SESSION_TTL_MINUTES", 720),
		ValidSizes:               splitList(os.Getenv("VALID_SIZES")),
		CardTaxPercent:           cardTax,
		LowStockThreshold:        getPositiveInt("LOW_STOCK_THRESHOLD", 5),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Production() bool {
	return c.AppEnv == "production"
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}

// splitList parses a comma separated value, dropping blanks.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	AllowedOrigin       string
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	KafkaBrokers        []string
	KafkaTopic          string
	AuthSecret          string
	AccessTokenTTL      time.Duration
	CheckoutRetries     int
	StaleReviseInterval time.Duration
	IdempotencyTTL      time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	retries, err := strconv.Atoi(getEnv("CHECKOUT_RETRIES", "3"))
	if err != nil || retries < 0 {
		retries = 3
	}

	return Config{
		Port:                getEnv("PORT", "8080"),
		AllowedOrigin:       getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             redisDB,
		KafkaBrokers:        splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "farmtech.events"),
		AuthSecret:          strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTL:      minutes("ACCESS_TOKEN_TTL_MINUTES", 8*60),
		CheckoutRetries:     retries,
		StaleReviseInterval: minutes("STALE_REVISE_INTERVAL_MINUTES", 60),
		IdempotencyTTL:      minutes("IDEMPOTENCY_TTL_MINUTES", 24*60),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func minutes(key string, fallback int) time.Duration {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		n = fallback
	}
	return time.Duration(n) * time.Minute
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

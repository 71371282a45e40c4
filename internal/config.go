package internal

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RiotGistURL   string
	RiotRegion    string
	RiotQueueType string
	RiotAPILimits string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDb       string
	PostgresSSLMode  string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       string

	NATSUrl      string
	NATSClientID string

	DiscordToken   string
	DiscordGuildID string

	SyncInterval time.Duration
	SyncPacing   time.Duration

	AppPort  string
	AppEnv   string
	LogLevel string

	CacheEnabled bool
}

func LoadConfig() *Config {
	cacheEnabled := os.Getenv("CACHE_ENABLED")
	enabled := cacheEnabled == "true" || cacheEnabled == ""

	return &Config{
		RiotGistURL:   os.Getenv("RIOT_API_GIST"),
		RiotRegion:    getenvDefault("RIOT_REGION", "euw1"),
		RiotQueueType: getenvDefault("RIOT_QUEUE_TYPE", "RANKED_TFT"),
		RiotAPILimits: os.Getenv("RIOT_API_LIMITS"),

		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     os.Getenv("POSTGRES_PORT"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDb:       os.Getenv("POSTGRES_DB"),
		PostgresSSLMode:  getenvDefault("POSTGRES_SSL_MODE", "disable"),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     os.Getenv("REDIS_PORT"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       os.Getenv("REDIS_DB"),

		NATSUrl:      os.Getenv("NATS_URL"),
		NATSClientID: getenvDefault("NATS_CLIENT_ID", "tft-ladder"),

		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		DiscordGuildID: os.Getenv("DISCORD_GUILD_ID"),

		SyncInterval: getenvSeconds("SYNC_INTERVAL_SECONDS", 15*time.Minute),
		SyncPacing:   getenvMillis("SYNC_PACING_MS", 800*time.Millisecond),

		AppPort:  getenvDefault("APP_PORT", "8000"),
		AppEnv:   os.Getenv("APP_ENV"),
		LogLevel: os.Getenv("LOG_LEVEL"),

		CacheEnabled: enabled,
	}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func getenvMillis(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// ParseRateLimits parses "20:1,100:120" (count:seconds pairs) into window
// definitions. Unset or malformed input falls back to the Riot developer
// defaults so a bad .env never disables the limiter.
func ParseRateLimits(s string) []RateLimit {
	if strings.TrimSpace(s) == "" {
		return defaultRiotLimits()
	}

	var limits []RateLimit
	for _, pair := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(pair), ":")
		if len(parts) != 2 {
			return defaultRiotLimits()
		}
		count, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		secs, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil || count <= 0 || secs <= 0 {
			return defaultRiotLimits()
		}
		limits = append(limits, RateLimit{Requests: count, Window: time.Duration(secs) * time.Second})
	}
	return limits
}

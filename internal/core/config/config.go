// Package config reads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type AnalyticsCfg struct {
	Enabled   bool
	Brokers   string
	Topic     string
	QueueSize int
}

type Config struct {
	Addr          string
	LogLevel      string
	OverpassURL   string
	RedisAddr     string
	GeoIPPath     string
	Debounce      time.Duration
	MoveThreshold float64
	CacheTTL      time.Duration
	CacheH3Res    int
	CacheSize     int
	SessionTTL    time.Duration
	Analytics     AnalyticsCfg
}

func FromEnv() Config {
	return Config{
		Addr:          getenv("ADDR", ":8080"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		OverpassURL:   getenv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		RedisAddr:     getenv("REDIS_ADDR", ""),
		GeoIPPath:     getenv("GEOIP_DB_PATH", ""),
		Debounce:      getduration("SYNC_DEBOUNCE", 300*time.Millisecond),
		MoveThreshold: getfloat("SYNC_MOVE_THRESHOLD", 0.25),
		CacheTTL:      getduration("CACHE_TTL", time.Minute),
		CacheH3Res:    getint("CACHE_H3_RES", 7),
		CacheSize:     getint("CACHE_MEMORY_SIZE", 512),
		SessionTTL:    getduration("SESSION_TTL", 30*time.Minute),
		Analytics: AnalyticsCfg{
			Enabled:   getbool("ANALYTICS_ENABLED", false),
			Brokers:   getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:     getenv("ANALYTICS_TOPIC", "facility-usage"),
			QueueSize: getint("ANALYTICS_QUEUE", 1024),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

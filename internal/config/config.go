// SPDX-License-Identifier: MIT

// Package config reads process-wide configuration from the environment.
// Everything beyond bootstrap (templates, groups, league mappings) lives in
// the settings store.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the bootstrap configuration.
type Config struct {
	// ListenAddr is the API bind address, e.g. ":8080".
	ListenAddr string
	// DataDir holds the sqlite database and the stream-match cache.
	DataDir string
	// Timezone is the EPG timezone.
	Timezone *time.Location
	// XMLTVPath is where the guide file is written.
	XMLTVPath string
	// TemplatesPath is an optional YAML template file, hot reloaded.
	TemplatesPath string

	// TSDBAPIKey authenticates against TheSportsDB. Empty disables that
	// provider.
	TSDBAPIKey string
	// ESPNBaseURL overrides the ESPN API base for testing.
	ESPNBaseURL string
	// RequestsPerMinute is the per-provider rate budget.
	RequestsPerMinute int

	// MiddlewareURL and MiddlewareToken configure the downstream dispatcher.
	// Empty URL disables event-group mode.
	MiddlewareURL   string
	MiddlewareToken string

	// RedisAddr enables the shared response cache; empty uses in-memory.
	RedisAddr string

	LogLevel string
	// LogComponentLevels quiets individual components, parsed from
	// "component=level" pairs ("matcher=warn,streamcache=warn").
	LogComponentLevels map[string]string

	// OTLPEndpoint enables tracing when set.
	OTLPEndpoint string
	// OTLPProtocol is "grpc" or "http".
	OTLPProtocol string
}

// FromEnv loads configuration from TC_-prefixed environment variables.
func FromEnv() (Config, error) {
	cfg := Config{
		ListenAddr:         envOr("TC_LISTEN", ":8080"),
		DataDir:            envOr("TC_DATA_DIR", "./data"),
		XMLTVPath:          envOr("TC_XMLTV_PATH", "./data/guide.xml"),
		TemplatesPath:      os.Getenv("TC_TEMPLATES_PATH"),
		TSDBAPIKey:         firstEnv("TC_TSDB_API_KEY", "TSDB_API_KEY"),
		ESPNBaseURL:        os.Getenv("TC_ESPN_BASE_URL"),
		RequestsPerMinute:  envInt("TC_REQUESTS_PER_MINUTE", 30),
		MiddlewareURL:      os.Getenv("TC_MIDDLEWARE_URL"),
		MiddlewareToken:    os.Getenv("TC_MIDDLEWARE_TOKEN"),
		RedisAddr:          os.Getenv("TC_REDIS_ADDR"),
		LogLevel:           envOr("TC_LOG_LEVEL", "info"),
		LogComponentLevels: parseComponentLevels(os.Getenv("TC_LOG_COMPONENT_LEVELS")),
		OTLPEndpoint:       os.Getenv("TC_OTLP_ENDPOINT"),
		OTLPProtocol:       envOr("TC_OTLP_PROTOCOL", "grpc"),
	}

	tz := envOr("TC_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("TC_TIMEZONE %q: %w", tz, err)
	}
	cfg.Timezone = loc

	if cfg.RequestsPerMinute <= 0 {
		return Config{}, fmt.Errorf("TC_REQUESTS_PER_MINUTE must be positive, got %d", cfg.RequestsPerMinute)
	}
	return cfg, nil
}

func parseComponentLevels(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		component, level, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || component == "" || level == "" {
			continue
		}
		out[component] = level
	}
	return out
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

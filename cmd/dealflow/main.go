// Package main implements the dealflow CLI: batch ingestion runs, schema
// migrations, source sync and daily cap administration.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/WessleyAI/dealflow/engine/fetch"
	"github.com/WessleyAI/dealflow/engine/promote"
)

var (
	version = "dev"
	commit  = "none"
)

// Config holds all environment-based configuration. Flags override it.
type Config struct {
	DatabaseURL string
	NATSURL     string
	Neo4jURL    string
	Neo4jUser   string
	Neo4jPass   string
	Timezone    string
	DailyCap    int
	SlowHosts   []string
	UserAgent   string
	SourcesFile string
	LogLevel    string
}

func loadConfig() Config {
	return Config{
		DatabaseURL: envOr("DATABASE_URL", "postgres://localhost:5432/dealflow?sslmode=disable"),
		NATSURL:     envOr("NATS_URL", ""),
		Neo4jURL:    envOr("NEO4J_URL", ""),
		Neo4jUser:   envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:   envOr("NEO4J_PASS", "password"),
		Timezone:    envOr("DEALFLOW_TIMEZONE", "America/New_York"),
		DailyCap:    envInt("DEALFLOW_DAILY_CAP", promote.DefaultDailyCap),
		SlowHosts:   envListOr("DEALFLOW_SLOW_HOSTS", fetch.DefaultSlowHosts),
		UserAgent:   envOr("DEALFLOW_USER_AGENT", ""),
		SourcesFile: envOr("DEALFLOW_SOURCES", "sources.yaml"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: ignoring malformed integer", "key", key, "value", v)
		return fallback
	}
	return n
}

// envListOr splits a comma-separated variable. An unset variable yields
// fallback; a set but empty one yields nil.
func envListOr(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return append([]string(nil), fallback...)
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// location resolves the catalog time zone.
func (c Config) location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func main() {
	if err := newRootCmd(loadConfig()).Execute(); err != nil {
		os.Exit(1)
	}
}

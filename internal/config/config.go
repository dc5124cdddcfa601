// Package config loads the dispatcher's configuration from
// environment variables.
package config

import (
	"strconv"
	"strings"
	"time"

	"dispatcher/internal/registry"
)

// WorkerSlot describes one well-known backend worker. The dispatcher
// only wires a slot whose URL env var is actually set.
type WorkerSlot struct {
	EnvVar        string
	Name          string
	Color         string
	DefaultWeight int64
	MaxLoad       int64
}

// KnownWorkers is the fixed set of worker slots this teaching
// deployment expects. Any slot without its URL env var set is skipped.
var KnownWorkers = []WorkerSlot{
	{"WORKER_GO_1_URL", "go-worker-1", "#3B82F6", 5, 3},
	{"WORKER_GO_2_URL", "go-worker-2", "#6366F1", 2, 3},
	{"WORKER_RUST_1_URL", "rust-worker-1", "#F97316", 6, 3},
	{"WORKER_RUST_2_URL", "rust-worker-2", "#EAB308", 1, 3},
	{"WORKER_PYTHON_1_URL", "python-worker-1", "#10B981", 1, 3},
	{"WORKER_PYTHON_2_URL", "python-worker-2", "#14B8A6", 3, 3},
}

// ResolvedWorker is a slot whose URL env var was set at startup.
type ResolvedWorker struct {
	Name    string
	URL     string
	Color   string
	Weight  int64
	MaxLoad int64
}

// Config is the dispatcher's full runtime configuration.
type Config struct {
	Port      string
	Algorithm string

	// AllowedOrigins is empty when ALLOWED_ORIGINS is unset, which the
	// httpapi CORS middleware treats as "allow any origin" — the
	// permissive default for this teaching deployment.
	AllowedOrigins []string

	LogLevel  string
	LogPretty bool

	CircuitThreshold  int
	CircuitRecovery   time.Duration
	HealthInterval    time.Duration
	BroadcastInterval time.Duration

	Workers []ResolvedWorker
}

// Load reads Config from getenv (os.Getenv in production; tests pass a
// map-backed stub).
func Load(getenv func(string) string) *Config {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	algo := getenv("LB_ALGORITHM")
	if algo == "" {
		algo = registry.DefaultAlgorithm
	}

	cfg := &Config{
		Port:              getenvDefault(getenv, "PORT", "8000"),
		Algorithm:         algo,
		AllowedOrigins:    splitAndTrim(getenv("ALLOWED_ORIGINS")),
		LogLevel:          getenvDefault(getenv, "LOG_LEVEL", "info"),
		LogPretty:         mustBool(getenv, "LOG_PRETTY", true),
		CircuitThreshold:  getenvInt(getenv, "CIRCUIT_THRESHOLD", registry.DefaultThreshold),
		CircuitRecovery:   mustDuration(getenv, "CIRCUIT_RECOVERY", registry.DefaultRecoveryOf),
		HealthInterval:    mustDuration(getenv, "HEALTH_INTERVAL", 5*time.Second),
		BroadcastInterval: mustDuration(getenv, "BROADCAST_INTERVAL", time.Second),
	}

	for _, slot := range KnownWorkers {
		url := getenv(slot.EnvVar)
		if url == "" {
			continue
		}
		weight := slot.DefaultWeight
		weightKey := strings.ToUpper(strings.ReplaceAll(slot.Name, "-", "_")) + "_WEIGHT"
		if raw := getenv(weightKey); raw != "" {
			if w, err := strconv.ParseInt(raw, 10, 64); err == nil && w > 0 {
				weight = w
			}
		}
		cfg.Workers = append(cfg.Workers, ResolvedWorker{
			Name:    slot.Name,
			URL:     url,
			Color:   slot.Color,
			Weight:  weight,
			MaxLoad: slot.MaxLoad,
		})
	}

	return cfg
}

func getenvDefault(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(getenv func(string) string, key string, def int) int {
	if v := getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(getenv func(string) string, key string, def bool) bool {
	if v := getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func mustDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, part := range raw {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

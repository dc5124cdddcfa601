package config

import "testing"

func mapGetenv(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load(mapGetenv(nil))

	if cfg.Port != "8000" {
		t.Fatalf("expected default port 8000, got %q", cfg.Port)
	}
	if cfg.Algorithm != "round-robin" {
		t.Fatalf("expected default algorithm round-robin, got %q", cfg.Algorithm)
	}
	if cfg.CircuitThreshold != 3 {
		t.Fatalf("expected default circuit threshold 3, got %d", cfg.CircuitThreshold)
	}
	if len(cfg.Workers) != 0 {
		t.Fatalf("expected no workers with no URL env vars set, got %d", len(cfg.Workers))
	}
}

func TestLoad_ResolvesOnlyWorkersWithURLSet(t *testing.T) {
	cfg := Load(mapGetenv(map[string]string{
		"WORKER_GO_1_URL": "http://go-1:9001",
	}))

	if len(cfg.Workers) != 1 {
		t.Fatalf("expected exactly one resolved worker, got %d", len(cfg.Workers))
	}
	w := cfg.Workers[0]
	if w.Name != "go-worker-1" || w.URL != "http://go-1:9001" || w.Weight != 5 {
		t.Fatalf("unexpected resolved worker: %+v", w)
	}
}

func TestLoad_WeightOverride(t *testing.T) {
	cfg := Load(mapGetenv(map[string]string{
		"WORKER_GO_1_URL":    "http://go-1:9001",
		"GO_WORKER_1_WEIGHT": "9",
	}))

	if len(cfg.Workers) != 1 || cfg.Workers[0].Weight != 9 {
		t.Fatalf("expected weight override to apply, got %+v", cfg.Workers)
	}
}

func TestLoad_InvalidWeightOverrideIgnored(t *testing.T) {
	cfg := Load(mapGetenv(map[string]string{
		"WORKER_GO_1_URL":    "http://go-1:9001",
		"GO_WORKER_1_WEIGHT": "not-a-number",
	}))

	if cfg.Workers[0].Weight != 5 {
		t.Fatalf("expected fallback to default weight on invalid override, got %d", cfg.Workers[0].Weight)
	}
}

func TestLoad_AllowedOriginsSplitAndTrimmed(t *testing.T) {
	cfg := Load(mapGetenv(map[string]string{
		"ALLOWED_ORIGINS": "http://a.test, http://b.test,  ",
	}))

	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "http://a.test" || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected parsed origins: %v", cfg.AllowedOrigins)
	}
}

func TestLoad_DurationsAndBooleanOverrides(t *testing.T) {
	cfg := Load(mapGetenv(map[string]string{
		"HEALTH_INTERVAL":    "2s",
		"BROADCAST_INTERVAL": "500ms",
		"CIRCUIT_RECOVERY":   "1m",
		"LOG_PRETTY":         "false",
	}))

	if cfg.HealthInterval.String() != "2s" {
		t.Fatalf("expected health interval 2s, got %v", cfg.HealthInterval)
	}
	if cfg.BroadcastInterval.String() != "500ms" {
		t.Fatalf("expected broadcast interval 500ms, got %v", cfg.BroadcastInterval)
	}
	if cfg.CircuitRecovery.String() != "1m0s" {
		t.Fatalf("expected circuit recovery 1m, got %v", cfg.CircuitRecovery)
	}
	if cfg.LogPretty {
		t.Fatalf("expected LOG_PRETTY=false to disable pretty logging")
	}
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"dispatcher/internal/breaker"
	"dispatcher/internal/broadcaster"
	"dispatcher/internal/forwarder"
	"dispatcher/internal/registry"
	"dispatcher/internal/selector"
	"dispatcher/internal/telemetry"
)

func newTestDeps(t *testing.T) (Deps, *registry.Registry) {
	t.Helper()
	reg := registry.New(3, 0)
	sel := selector.New(reg)
	tracker := breaker.New(reg)
	m := telemetry.New()
	promReg := prometheus.NewRegistry()
	m.MustRegister(promReg)

	bc := broadcaster.New(reg, nil)
	fwd := forwarder.New(sel, tracker, m, nil, bc.Broadcast)

	return Deps{
		Registry:       reg,
		Forwarder:      fwd,
		Broadcaster:    bc,
		Metrics:        m,
		MetricsHandler: telemetry.Handler(promReg),
		AllowedOrigins: nil,
	}, reg
}

func TestHealth_Returns200(t *testing.T) {
	d, _ := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(d))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestStatus_ReflectsRegisteredWorkers(t *testing.T) {
	d, reg := newTestDeps(t)
	reg.AddWorker("w1", "http://example.invalid", "#fff", 1, 10)
	srv := httptest.NewServer(NewRouter(d))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var snap registry.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Workers) != 1 || snap.Workers[0].Name != "w1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestTask_NoWorkersReturns503(t *testing.T) {
	d, _ := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(d))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/task", "application/json", bytes.NewReader([]byte(`{"id":"t1"}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestAlgorithm_GetAndSet(t *testing.T) {
	d, _ := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(d))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/algorithm")
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()
	if got["algorithm"] != "round-robin" {
		t.Fatalf("expected default round-robin, got %v", got["algorithm"])
	}

	putResp, err := http.Post(srv.URL+"/algorithm", "application/json", bytes.NewReader([]byte(`{"algorithm":"random"}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer putResp.Body.Close()
	if putResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", putResp.StatusCode)
	}

	confirm, _ := http.Get(srv.URL + "/algorithm")
	var got2 map[string]interface{}
	json.NewDecoder(confirm.Body).Decode(&got2)
	confirm.Body.Close()
	if got2["algorithm"] != "random" {
		t.Fatalf("expected algorithm switched to random, got %v", got2["algorithm"])
	}
}

func TestAlgorithm_RejectsUnknownName(t *testing.T) {
	d, _ := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(d))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/algorithm", "application/json", bytes.NewReader([]byte(`{"algorithm":"bogus"}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPatchWorker_UnknownNameReturns404(t *testing.T) {
	d, _ := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(d))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/workers/missing", bytes.NewReader([]byte(`{"enabled":false}`)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestPatchWorker_UpdatesEnabledAndWeight(t *testing.T) {
	d, reg := newTestDeps(t)
	reg.AddWorker("w1", "http://example.invalid", "#fff", 1, 10)
	srv := httptest.NewServer(NewRouter(d))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/workers/w1", bytes.NewReader([]byte(`{"enabled":false,"weight":9}`)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	w := reg.Find("w1")
	if w.Enabled || w.Weight != 9 {
		t.Fatalf("expected worker patched, got enabled=%v weight=%d", w.Enabled, w.Weight)
	}
}

func TestProxyWorkerConfig_ProxiesToWorker(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"mode": "fast"})
	}))
	defer backend.Close()

	d, reg := newTestDeps(t)
	reg.AddWorker("w1", backend.URL, "#fff", 1, 10)
	srv := httptest.NewServer(NewRouter(d))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/workers/w1/config")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&got)
	if got["mode"] != "fast" || got["worker"] != "w1" {
		t.Fatalf("unexpected proxied body: %v", got)
	}
}

func TestProxyWorkerConfig_UnknownWorkerReturns404(t *testing.T) {
	d, _ := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(d))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/workers/missing/config")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMetrics_ExposesPrometheusText(t *testing.T) {
	d, _ := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(d))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestCORS_PreflightReturnsWildcardByDefault(t *testing.T) {
	d, _ := newTestDeps(t)
	srv := httptest.NewServer(NewRouter(d))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/status", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard CORS origin, got %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

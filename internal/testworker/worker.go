// Package testworker implements the reference backend worker contract
// the dispatcher assumes: POST /task, GET /health, GET/PUT/POST
// /config, GET /metrics. It runs as a struct (configuration, request
// counters, private Prometheus series and *http.Server, Start/Stop
// methods) so more than one instance can run in-process at once.
package testworker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Configuration holds simulation parameters, mutable at runtime via
// PUT/POST /config.
type Configuration struct {
	MaxConcurrentRequests int     `json:"max_concurrent_requests"`
	ResponseDelayMs       int     `json:"response_delay_ms"`
	FailureRate           float64 `json:"failure_rate"`
	QueueSize             int     `json:"queue_size"`
}

func (c Configuration) merge(patch Configuration) Configuration {
	if patch.MaxConcurrentRequests > 0 {
		c.MaxConcurrentRequests = patch.MaxConcurrentRequests
	}
	if patch.ResponseDelayMs >= 0 {
		c.ResponseDelayMs = patch.ResponseDelayMs
	}
	if patch.FailureRate >= 0 && patch.FailureRate <= 1 {
		c.FailureRate = patch.FailureRate
	}
	if patch.QueueSize > 0 {
		c.QueueSize = patch.QueueSize
	}
	return c
}

// DefaultConfiguration returns the worker's baseline simulation settings.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxConcurrentRequests: 10,
		ResponseDelayMs:       100,
		FailureRate:           0,
		QueueSize:             50,
	}
}

type taskRequest struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

type taskResponse struct {
	ID               string `json:"id"`
	Worker           string `json:"worker"`
	Color            string `json:"color"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	Timestamp        string `json:"timestamp"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Worker string `json:"worker"`
}

type healthResponse struct {
	Status      string `json:"status"`
	CurrentLoad int32  `json:"currentLoad"`
	QueueDepth  int    `json:"queueDepth"`
}

// Worker is a single simulated backend, able to run standalone via
// Start/Stop or be mounted directly as an http.Handler in tests.
type Worker struct {
	Name  string
	Color string

	mu  sync.RWMutex
	cfg Configuration

	activeRequests int32
	queue          chan struct{}

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	currentLoadGa   *prometheus.GaugeVec

	httpServer *http.Server
}

// New creates a Worker with the given identity and initial
// configuration.
func New(name, color string, cfg Configuration) *Worker {
	w := &Worker{
		Name:  name,
		Color: color,
		cfg:   cfg,
		queue: make(chan struct{}, cfg.QueueSize),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "worker_requests_total", Help: "Total number of requests processed"},
			[]string{"worker", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "worker_request_duration_ms",
				Help:    "Request duration in milliseconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"worker"},
		),
		currentLoadGa: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "worker_current_load", Help: "Current number of concurrent requests"},
			[]string{"worker"},
		),
	}
	return w
}

// Registry returns a fresh prometheus.Registry carrying this worker's
// series, for mounting /metrics without colliding with the process
// default registry (multiple Workers run in-process during tests).
func (w *Worker) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(w.requestsTotal, w.requestDuration, w.currentLoadGa)
	return reg
}

func (w *Worker) getConfig() Configuration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

func (w *Worker) updateConfig(patch Configuration) Configuration {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cfg = w.cfg.merge(patch)
	return w.cfg
}

// Handler builds the worker's HTTP surface.
func (w *Worker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/task", w.handleTask)
	mux.HandleFunc("/health", w.handleHealth)
	mux.HandleFunc("/config", w.handleConfig)
	mux.Handle("/metrics", promhttp.HandlerFor(w.Registry(), promhttp.HandlerOpts{}))
	return corsMiddleware(mux)
}

// Start runs the worker's HTTP server on addr until Stop is called.
func (w *Worker) Start(addr string) error {
	w.httpServer = &http.Server{Addr: addr, Handler: w.Handler()}
	err := w.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the worker's HTTP server down within ctx's
// deadline.
func (w *Worker) Stop(ctx context.Context) error {
	if w.httpServer == nil {
		return nil
	}
	return w.httpServer.Shutdown(ctx)
}

func (w *Worker) handleTask(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := w.getConfig()

	select {
	case w.queue <- struct{}{}:
		defer func() { <-w.queue }()
	default:
		w.requestsTotal.WithLabelValues(w.Name, "rejected").Inc()
		writeJSON(rw, http.StatusServiceUnavailable, errorResponse{Error: "Queue full - service overloaded", Worker: w.Name})
		return
	}

	current := atomic.AddInt32(&w.activeRequests, 1)
	defer func() {
		atomic.AddInt32(&w.activeRequests, -1)
		w.currentLoadGa.WithLabelValues(w.Name).Set(float64(atomic.LoadInt32(&w.activeRequests)))
	}()
	w.currentLoadGa.WithLabelValues(w.Name).Set(float64(current))

	if int(current) > cfg.MaxConcurrentRequests {
		w.requestsTotal.WithLabelValues(w.Name, "overloaded").Inc()
		writeJSON(rw, http.StatusServiceUnavailable, errorResponse{
			Error:  fmt.Sprintf("Max concurrent requests exceeded (%d/%d)", current, cfg.MaxConcurrentRequests),
			Worker: w.Name,
		})
		return
	}

	var task taskRequest
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		w.requestsTotal.WithLabelValues(w.Name, "error").Inc()
		writeJSON(rw, http.StatusBadRequest, errorResponse{Error: "Invalid request body", Worker: w.Name})
		return
	}

	start := time.Now()
	weight := task.Weight
	if weight <= 0 {
		weight = 1
	}
	time.Sleep(time.Duration(float64(cfg.ResponseDelayMs)*weight) * time.Millisecond)
	processingTime := time.Since(start).Milliseconds()
	w.requestDuration.WithLabelValues(w.Name).Observe(float64(processingTime))

	if rand.Float64() < cfg.FailureRate {
		w.requestsTotal.WithLabelValues(w.Name, "failed").Inc()
		writeJSON(rw, http.StatusInternalServerError, errorResponse{Error: "Simulated failure", Worker: w.Name})
		return
	}

	w.requestsTotal.WithLabelValues(w.Name, "success").Inc()
	writeJSON(rw, http.StatusOK, taskResponse{
		ID:               task.ID,
		Worker:           w.Name,
		Color:            w.Color,
		ProcessingTimeMs: processingTime,
		Timestamp:        time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (w *Worker) handleHealth(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := w.getConfig()
	load := atomic.LoadInt32(&w.activeRequests)
	queueDepth := len(w.queue)

	loadRatio := float64(load) / float64(cfg.MaxConcurrentRequests)
	queueRatio := float64(queueDepth) / float64(cfg.QueueSize)

	status := "healthy"
	switch {
	case loadRatio >= 0.9 || queueRatio >= 0.9:
		status = "unhealthy"
	case loadRatio >= 0.7 || queueRatio >= 0.7:
		status = "degraded"
	}

	writeJSON(rw, http.StatusOK, healthResponse{Status: status, CurrentLoad: load, QueueDepth: queueDepth})
}

func (w *Worker) handleConfig(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(rw, http.StatusOK, w.getConfig())
	case http.MethodPut, http.MethodPost:
		var patch Configuration
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			http.Error(rw, "Invalid config body", http.StatusBadRequest)
			return
		}
		writeJSON(rw, http.StatusOK, w.updateConfig(patch))
	default:
		http.Error(rw, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Package forwarder implements the /task request path: select a
// worker, account for the in-flight load, forward the task body, and
// classify the outcome for the circuit breaker and metrics.
//
// Every exit path decrements the worker's load exactly once, via a
// single deferred EndForward right after BeginForward.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"dispatcher/internal/breaker"
	"dispatcher/internal/registry"
	"dispatcher/internal/selector"
	"dispatcher/internal/telemetry"
)

const forwardTimeout = 30 * time.Second

// Result is the outcome of a single forwarded task, returned to the
// HTTP layer so it can shape the client response.
type Result struct {
	StatusCode int
	Body       map[string]interface{}
	WorkerName string
}

// Forwarder handles one client task end to end.
type Forwarder struct {
	sel      *selector.Selector
	tracker  *breaker.Tracker
	metrics  *telemetry.Metrics
	client   *http.Client
	log      *zap.Logger
	onChange func()
}

// New creates a Forwarder. onChange is invoked after a successfully
// forwarded task so the caller can request a broadcast.
func New(sel *selector.Selector, tracker *breaker.Tracker, metrics *telemetry.Metrics, log *zap.Logger, onChange func()) *Forwarder {
	return &Forwarder{
		sel:      sel,
		tracker:  tracker,
		metrics:  metrics,
		client:   &http.Client{Timeout: forwardTimeout},
		log:      log,
		onChange: onChange,
	}
}

// taskBody is the optional client payload. Both fields are optional;
// a missing or invalid body is tolerated and weight defaults to 1.
type taskBody struct {
	ID     string  `json:"id,omitempty"`
	Weight float64 `json:"weight,omitempty"`
}

// Forward selects a worker, forwards the normalized task body
// ({id, weight}, weight defaulting to 1), and
// returns the classified result. ctx should carry the inbound
// request's context so client disconnects propagate.
func (f *Forwarder) Forward(ctx context.Context, rawBody []byte) Result {
	worker, err := f.sel.Select()
	if err != nil {
		f.metrics.RequestsTotal.WithLabelValues("none", "error").Inc()
		return Result{
			StatusCode: http.StatusServiceUnavailable,
			Body:       map[string]interface{}{"error": "No healthy workers available"},
		}
	}

	body := normalizeBody(rawBody)

	registry.BeginForward(worker)
	defer registry.EndForward(worker)

	start := time.Now()
	resp, err := f.doForward(ctx, worker, body)
	duration := time.Since(start)
	f.metrics.RequestLatency.WithLabelValues(worker.Name).Observe(float64(duration.Milliseconds()))

	if err != nil || resp.statusCode >= http.StatusInternalServerError {
		return f.classifyFailure(worker, resp, err)
	}

	return f.classifySuccess(worker, resp, duration)
}

type forwardResponse struct {
	statusCode int
	body       []byte
}

func (f *Forwarder) doForward(ctx context.Context, w *registry.Worker, body []byte) (forwardResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.URL+"/task", bytes.NewReader(body))
	if err != nil {
		return forwardResponse{}, fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return forwardResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return forwardResponse{statusCode: resp.StatusCode}, err
	}
	return forwardResponse{statusCode: resp.StatusCode, body: respBody}, nil
}

func (f *Forwarder) classifyFailure(w *registry.Worker, resp forwardResponse, forwardErr error) Result {
	registry.RecordFailure(w)
	f.tracker.Failure(w)
	f.metrics.RequestsTotal.WithLabelValues(w.Name, "error").Inc()

	if f.log != nil {
		f.log.Warn("forward failed",
			zap.String("worker", w.Name),
			zap.Int("status", resp.statusCode),
			zap.Error(forwardErr))
	}

	return Result{
		StatusCode: http.StatusServiceUnavailable,
		Body:       map[string]interface{}{"error": "Worker failed"},
		WorkerName: w.Name,
	}
}

func (f *Forwarder) classifySuccess(w *registry.Worker, resp forwardResponse, duration time.Duration) Result {
	f.tracker.Success(w)
	f.metrics.RequestsTotal.WithLabelValues(w.Name, "success").Inc()

	result := map[string]interface{}{}
	if len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, &result); err != nil {
			result = map[string]interface{}{}
		}
	}
	result["worker"] = w.Name
	result["workerColor"] = w.Color
	result["processingTimeMs"] = int(duration.Milliseconds())

	f.notify()
	return Result{StatusCode: http.StatusOK, Body: result, WorkerName: w.Name}
}

func (f *Forwarder) notify() {
	if f.onChange != nil {
		f.onChange()
	}
}

func normalizeBody(raw []byte) []byte {
	var body taskBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return []byte(`{"weight":1}`)
	}
	if body.Weight == 0 {
		body.Weight = 1
	}
	normalized, err := json.Marshal(body)
	if err != nil {
		return []byte(`{"weight":1}`)
	}
	return normalized
}

// Package health drives the circuit/health tracker on a periodic tick
// by probing each worker's /health endpoint. A new tick never launches
// a second in-flight probe for a worker whose previous probe hasn't
// completed.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"dispatcher/internal/breaker"
	"dispatcher/internal/registry"
	"dispatcher/internal/telemetry"
)

const DefaultInterval = 5 * time.Second
const probeTimeout = 2 * time.Second

// Prober periodically issues GET {worker.url}/health against every
// registered worker and feeds the outcome to the breaker Tracker.
type Prober struct {
	reg      *registry.Registry
	tracker  *breaker.Tracker
	metrics  *telemetry.Metrics
	interval time.Duration
	client   *http.Client
	log      *zap.Logger

	inFlight map[*registry.Worker]*int32
}

// New creates a Prober. interval <= 0 uses DefaultInterval. metrics may
// be nil, in which case the health/active-connection gauges are not set.
func New(reg *registry.Registry, tracker *breaker.Tracker, metrics *telemetry.Metrics, interval time.Duration, log *zap.Logger) *Prober {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Prober{
		reg:      reg,
		tracker:  tracker,
		metrics:  metrics,
		interval: interval,
		client:   &http.Client{Timeout: probeTimeout},
		log:      log,
		inFlight: make(map[*registry.Worker]*int32),
	}
}

// Run blocks, ticking every interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Prober) tick(ctx context.Context) {
	for _, w := range p.reg.Workers() {
		gate := p.gateFor(w)
		if !atomic.CompareAndSwapInt32(gate, 0, 1) {
			// Previous probe for this worker hasn't completed; skip
			// this tick rather than stacking another goroutine.
			continue
		}
		go func(w *registry.Worker, gate *int32) {
			defer atomic.StoreInt32(gate, 0)
			p.probe(ctx, w)
		}(w, gate)
	}
}

func (p *Prober) gateFor(w *registry.Worker) *int32 {
	if g, ok := p.inFlight[w]; ok {
		return g
	}
	g := new(int32)
	p.inFlight[w] = g
	return g
}

func (p *Prober) probe(ctx context.Context, w *registry.Worker) {
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, w.URL+"/health", nil)
	if err != nil {
		p.tracker.Failure(w)
		p.setGauges(w, false)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.tracker.Failure(w)
		p.setGauges(w, false)
		return
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	if healthy {
		p.tracker.Success(w)
	} else {
		if p.log != nil {
			p.log.Debug("health probe non-200",
				zap.String("worker", w.Name), zap.Int("status", resp.StatusCode))
		}
		p.tracker.Failure(w)
	}
	p.setGauges(w, healthy)
}

// setGauges publishes the probe outcome and current load, matching the
// reference worker's health-check report on every tick regardless of
// outcome.
func (p *Prober) setGauges(w *registry.Worker, healthy bool) {
	if p.metrics == nil {
		return
	}
	healthVal := 0.0
	if healthy {
		healthVal = 1.0
	}
	p.metrics.WorkerHealth.WithLabelValues(w.Name).Set(healthVal)
	p.metrics.ActiveConns.WithLabelValues(w.Name).Set(float64(registry.CurrentLoad(w)))
}

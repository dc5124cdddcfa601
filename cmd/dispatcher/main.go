// cmd/dispatcher/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"dispatcher/internal/breaker"
	"dispatcher/internal/broadcaster"
	"dispatcher/internal/config"
	"dispatcher/internal/forwarder"
	"dispatcher/internal/health"
	"dispatcher/internal/httpapi"
	"dispatcher/internal/logging"
	"dispatcher/internal/registry"
	"dispatcher/internal/selector"
	"dispatcher/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load(os.Getenv)
	log := logging.New(cfg.LogLevel, cfg.LogPretty)
	defer log.Sync()

	reg := registry.New(cfg.CircuitThreshold, cfg.CircuitRecovery)
	if err := reg.SetAlgorithm(cfg.Algorithm); err != nil {
		log.Fatal("invalid LB_ALGORITHM", zap.String("algorithm", cfg.Algorithm), zap.Error(err))
	}

	for _, w := range cfg.Workers {
		reg.AddWorker(w.Name, w.URL, w.Color, w.Weight, w.MaxLoad)
		log.Info("registered worker",
			zap.String("name", w.Name), zap.String("url", w.URL),
			zap.Int64("weight", w.Weight), zap.Int64("maxLoad", w.MaxLoad))
	}

	sel := selector.New(reg)
	tracker := breaker.New(reg)

	metrics := telemetry.New()
	metrics.MustRegister(prometheus.DefaultRegisterer)

	prober := health.New(reg, tracker, metrics, cfg.HealthInterval, log)

	bc := broadcaster.New(reg, log)
	fwd := forwarder.New(sel, tracker, metrics, log, bc.Broadcast)

	router := httpapi.NewRouter(httpapi.Deps{
		Registry:       reg,
		Forwarder:      fwd,
		Broadcaster:    bc,
		Metrics:        metrics,
		MetricsHandler: telemetry.Handler(prometheus.DefaultGatherer),
		Log:            log,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go prober.Run(ctx)
	go bc.Run(ctx, cfg.BroadcastInterval)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Info("shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown error", zap.Error(err))
		}
	}()

	log.Info("dispatcher starting", zap.String("port", cfg.Port), zap.String("algorithm", cfg.Algorithm))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("http server error", zap.Error(err))
	}
	log.Info("dispatcher stopped")
}

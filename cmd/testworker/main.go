// cmd/testworker/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"dispatcher/internal/testworker"
)

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func main() {
	name := os.Getenv("WORKER_NAME")
	if name == "" {
		name = "go-worker-1"
	}
	color := os.Getenv("WORKER_COLOR")
	if color == "" {
		color = "#3B82F6"
	}

	cfg := testworker.Configuration{
		MaxConcurrentRequests: getenvInt("MAX_CONCURRENT_REQUESTS", 10),
		ResponseDelayMs:       getenvInt("RESPONSE_DELAY_MS", 100),
		FailureRate:           getenvFloat("FAILURE_RATE", 0),
		QueueSize:             getenvInt("QUEUE_SIZE", 50),
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	w := testworker.New(name, color, cfg)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		w.Stop(ctx)
	}()

	log.Printf("starting %s on port %s (color: %s)", name, port, color)
	log.Printf("config: max_concurrent=%d, delay=%dms, failure_rate=%.2f, queue_size=%d",
		cfg.MaxConcurrentRequests, cfg.ResponseDelayMs, cfg.FailureRate, cfg.QueueSize)

	if err := w.Start(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

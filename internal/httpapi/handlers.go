package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dispatcher/internal/registry"
)

type handlers struct {
	d        Deps
	upgrader websocket.Upgrader
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// health answers GET /health unconditionally.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// status answers GET /status with the full registry snapshot.
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Registry.Snapshot())
}

// task answers POST /task, the dispatcher's hot path.
func (h *handlers) task(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	result := h.d.Forwarder.Forward(r.Context(), body)
	writeJSON(w, result.StatusCode, result.Body)
}

// getAlgorithm answers GET /algorithm.
func (h *handlers) getAlgorithm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"algorithm": h.d.Registry.Algorithm(),
		"available": registry.AvailableAlgorithms,
	})
}

// setAlgorithm answers PUT/POST /algorithm.
func (h *handlers) setAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Algorithm string `json:"algorithm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.d.Registry.SetAlgorithm(req.Algorithm); err != nil {
		writeError(w, http.StatusBadRequest, "invalid algorithm")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"algorithm": req.Algorithm,
		"available": registry.AvailableAlgorithms,
	})
	h.notify()
}

// patchWorker answers PATCH /workers/{name}.
func (h *handlers) patchWorker(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "worker name required")
		return
	}

	var req struct {
		Enabled *bool  `json:"enabled,omitempty"`
		Weight  *int64 `json:"weight,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.d.Registry.UpdateWorker(name, req.Enabled, req.Weight) {
		writeError(w, http.StatusNotFound, "worker not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	h.notify()
}

// proxyWorkerConfig answers GET/PUT/POST /workers/{name}/config by
// forwarding to the worker's own /config endpoint.
func (h *handlers) proxyWorkerConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	worker := h.d.Registry.Find(name)
	if worker == nil {
		writeError(w, http.StatusNotFound, "worker not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), proxyTimeout)
	defer cancel()

	var body io.Reader
	if r.Method != http.MethodGet {
		body = r.Body
	}
	proxyReq, err := http.NewRequestWithContext(ctx, r.Method, worker.URL+"/config", body)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to build proxy request")
		return
	}
	if r.Method != http.MethodGet {
		proxyReq.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: proxyTimeout}
	resp, err := client.Do(proxyReq)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to reach worker")
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to read worker response")
		return
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(respBody, &decoded); err == nil && decoded != nil {
		decoded["worker"] = name
		writeJSON(w, resp.StatusCode, decoded)
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(respBody)
}

// metrics answers GET /metrics in Prometheus text format.
func (h *handlers) metrics(w http.ResponseWriter, r *http.Request) {
	h.d.MetricsHandler.ServeHTTP(w, r)
}

// ws answers GET /ws, upgrading to a push-stream subscription.
func (h *handlers) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.d.Log != nil {
			h.d.Log.Warn("websocket upgrade failed", zap.Error(err))
		}
		return
	}

	id := h.d.Broadcaster.Subscribe(conn)

	// Clients aren't expected to send anything; a read error (close,
	// reset, etc.) is the unsubscribe signal.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.d.Broadcaster.Unsubscribe(id)
			return
		}
	}
}

func (h *handlers) notify() {
	if h.d.Broadcaster != nil {
		h.d.Broadcaster.Broadcast()
	}
}

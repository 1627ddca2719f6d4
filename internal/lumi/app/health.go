package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/lumi-bot/lumi/common/version"
)

// HealthServer exposes /health, /status, / and any additionally
// registered HTTP endpoints (e.g. the webhook callback).
type HealthServer struct {
	addr      string
	memory    healthChecker
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

// healthChecker is the minimal interface the health server needs from
// the memory layer.
type healthChecker interface {
	Healthy(ctx context.Context) bool
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status      string    `json:"status"`
	Service     string    `json:"service"`
	Version     string    `json:"version"`
	Commit      string    `json:"commit"`
	BuildTime   string    `json:"build_time"`
	StartedAt   time.Time `json:"started_at"`
	UptimeSecs  float64   `json:"uptime_seconds"`
	MemoryStore string    `json:"memory_store"`
}

// homeResponse is returned by GET /.
type homeResponse struct {
	Message  string   `json:"message"`
	Features []string `json:"features"`
	Status   string   `json:"status"`
}

// NewHealthServer creates and configures the HTTP server (does not
// start it).
func NewHealthServer(addr string, mem healthChecker) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		addr:      addr,
		memory:    mem,
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/status", hs.handleStatus)
	mux.HandleFunc("/{$}", hs.handleHome)
	return hs
}

// ServeHTTP implements http.Handler so the server can be tested without
// a live network listener.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Handle registers a handler for the given URL pattern, delegating to
// the underlying ServeMux. Call this before Start to add extra routes.
func (h *HealthServer) Handle(pattern string, handler http.Handler) {
	h.mux.Handle(pattern, handler)
}

// Start begins listening in the background. Blocks until the listener
// is established so the caller knows the port is open before returning.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", h.addr, err)
	}

	h.server = &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("health server listening", "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("health server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("health server shutdown error", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (h *HealthServer) Stop() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		slog.Warn("health server shutdown error", "err", err)
	}
}

// handleHealth responds with a simple ok JSON payload.
func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Service: "lumi",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

// handleStatus responds with runtime statistics, including the memory
// store's reachability.
func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	memStatus := "unknown"
	if h.memory != nil {
		if h.memory.Healthy(r.Context()) {
			memStatus = "ok"
		} else {
			memStatus = "unreachable"
		}
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:      "ok",
		Service:     "lumi",
		Version:     version.Version,
		Commit:      version.GitCommit,
		BuildTime:   version.BuildTime,
		StartedAt:   h.startedAt,
		UptimeSecs:  time.Since(h.startedAt).Seconds(),
		MemoryStore: memStatus,
	})
}

// handleHome responds with a short service description.
func (h *HealthServer) handleHome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, homeResponse{
		Message: "Lumi AI 服務運行中",
		Features: []string{
			"長期記憶系統",
			"多元人格模式",
			"每日對話摘要",
			"Webhook 整合",
		},
		Status: "active",
	})
}

// writeJSON serialises v as JSON and writes it to w with the given
// status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode JSON response", "err", err)
	}
}

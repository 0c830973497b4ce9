// Package server provides HTTP server construction for chatsync.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/chatsync/internal/auth"
	"github.com/alexjbarnes/chatsync/internal/metrics"
	"github.com/alexjbarnes/chatsync/internal/syncstate"
)

// StatusSource reports the current sync state.
type StatusSource interface {
	Snapshot() syncstate.State
}

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Keys       *auth.Keys
	MCPHandler http.Handler
	Status     StatusSource
	Logger     *slog.Logger

	// Metrics mounts /metrics on this mux.
	Metrics bool
}

// NewMux builds the HTTP mux with health, optional metrics and MCP
// endpoints. The MCP endpoint is protected by the API key middleware.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth(cfg.Status))

	if cfg.Metrics {
		mux.Handle("/metrics", metrics.Handler())
	}

	if cfg.MCPHandler != nil {
		authMiddleware := auth.Middleware(cfg.Keys, cfg.Logger)
		mux.Handle("/mcp", authMiddleware(cfg.MCPHandler))
	}

	return mux
}

// handleHealth reports liveness and the coarse sync status. It never
// exposes sync tokens or error text.
func handleHealth(src StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]string{"status": "ok"}
		if src != nil {
			body["sync"] = string(src.Snapshot().Status)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
}

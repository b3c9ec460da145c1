// Package server provides the HTTP control surface for scout-sync: the
// JSON control API, the websocket event stream, and the MCP tool
// endpoint.
package server

import (
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/scout-sync/internal/session"
)

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Session    *session.Session
	Hub        *Hub
	MCPHandler http.Handler
	Logger     *slog.Logger
}

// NewMux builds the HTTP mux with the status, command, and event
// endpoints. The MCP endpoint is mounted only when a handler is given.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", HandleStatus(cfg.Session))
	mux.HandleFunc("/api/file", HandleFile(cfg.Session, cfg.Logger))
	mux.HandleFunc("/api/destination", HandleDestination(cfg.Session, cfg.Logger))
	mux.HandleFunc("/api/encoding", HandleEncoding(cfg.Session, cfg.Logger))
	mux.HandleFunc("/api/events", cfg.Hub.HandleEvents)

	if cfg.MCPHandler != nil {
		mux.Handle("/mcp", cfg.MCPHandler)
	}

	return mux
}

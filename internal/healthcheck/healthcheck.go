// Package healthcheck serves a minimal liveness endpoint for the daemon.
package healthcheck

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// NormalizeListen turns a port or host:port into a listen address. Empty
// input stays empty, meaning disabled.
func NormalizeListen(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, ":") {
		return ":" + s
	}
	return s
}

// StartServer starts an HTTP server answering GET /healthz. The caller owns
// shutdown.
func StartServer(ctx context.Context, log *slog.Logger, addr, component string) (*http.Server, error) {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":    "ok",
			"component": component,
		})
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server.Addr = listener.Addr().String()
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Warn("health_server_error", "addr", addr, "error", err.Error())
		}
	}()
	log.Info("health_server_started", "addr", listener.Addr().String(), "component", component)
	return server, nil
}

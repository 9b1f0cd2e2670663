package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/infrastructure/config"
	obs "github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/infrastructure/observability"
	"github.com/sniaff-suite/sniaff-mitmdump-mcp/internal/usecase"
)

type Deps struct {
	Cfg     config.Config
	Logger  *zerolog.Logger
	Metrics *obs.Metrics
	Capture *usecase.Capture
	Monitor *MonitorHub
}

func NewRouterWithDeps(d *Deps) http.Handler {
	return withCORS(d.Cfg, buildBaseMux(d))
}

func buildBaseMux(d *Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// Ready once a capture target is open; the proxy works either way
		// but flows would go unrecorded.
		if d.Capture.State() != usecase.StateOpen {
			writeError(w, http.StatusServiceUnavailable, "CAPTURE_NOT_CONFIGURED", "no capture file configured", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry(), promhttp.HandlerOpts{}))

	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":    "sniaff-capture",
			"version": obs.Version,
			"commit":  obs.Commit,
			"time":    time.Now().UTC(),
		})
	})

	mux.HandleFunc("/api/capture", d.handleCapture)
	mux.HandleFunc("/api/monitor/ws", d.Monitor.HandleWS)

	// Capture source. Usage:
	//  - GET /proxy?target=https://api.example.com            -> proxies to https://api.example.com/
	//  - GET /proxy/v1/users?target=https://api.example.com   -> proxies to https://api.example.com/v1/users
	//  Query params except `target` are forwarded upstream.
	mux.HandleFunc("/proxy", d.handleProxy)
	mux.HandleFunc("/proxy/", d.handleProxy)

	return mux
}

func withCORS(cfg config.Config, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", cfg.CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}

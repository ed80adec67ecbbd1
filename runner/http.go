package runner

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// StatusProvider is implemented by *Supervisor; kept as an interface
// so the HTTP surface can be tested against a fake.
type StatusProvider interface {
	Status() map[string]string
}

// NewHTTPServer builds the operator-facing surface: /healthz (always
// 200 once the process is up), /status (per-task state from the
// supervisor) and /metrics (promhttp's exposition of the default
// Prometheus registry). The rcrowley/go-metrics registry in
// internal/metrics is not bridged to Prometheus, so its gauges and
// counters do not appear on /metrics. CORS is permissive since this surface is
// operator/monitoring-only, never browser-facing with credentials.
func NewHTTPServer(addr string, status StatusProvider) *http.Server {
	router := httprouter.New()
	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.GET("/status", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status.Status())
	})
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	handler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
	}).Handler(router)

	return &http.Server{Addr: addr, Handler: handler}
}

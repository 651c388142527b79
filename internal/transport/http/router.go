package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"taskstream/pkg/platform/circuit"
)

// HealthChecker reports one dependency's health for /healthz.
type HealthChecker struct {
	Name  string
	Check func() error
}

// NewRouter wires middleware, the public endpoints, and the API routes.
func NewRouter(h *Handler, log *logrus.Logger, breaker *circuit.Breaker, checks ...HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestTime)
	r.Use(Recovery(log))
	r.Use(Logger(log))

	r.Get("/healthz", healthHandler(breaker, checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	h.Register(r)
	return r
}

func healthHandler(breaker *circuit.Breaker, checks []HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		for _, check := range checks {
			if err := check.Check(); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[check.Name] = err.Error()
			} else {
				body[check.Name] = "ok"
			}
		}
		if breaker != nil {
			body["projection_cache_circuit"] = string(breaker.State())
		}
		writeJSON(w, status, body)
	}
}

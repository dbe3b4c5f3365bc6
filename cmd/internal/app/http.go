package app

import (
	"context"
	"net/http"
	"time"

	"sessiond/cmd/internal/auth/api"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// readyCheck reports whether one dependency can serve traffic.
type readyCheck struct {
	name  string
	check func(ctx context.Context) error
}

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	gatherer prometheus.Gatherer,
	checks []readyCheck,
	auth *api.Handler,
) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		for _, c := range checks {
			if err := c.check(ctx); err != nil {
				log.Info("readyz.not_ready", "dependency", c.name, "err", err)
				http.Error(w, c.name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	if auth != nil {
		auth.Register(mux)
	}

	// Least specific pattern, so it also catches a known path with the wrong method.
	mux.HandleFunc("/", api.NotFound)
}

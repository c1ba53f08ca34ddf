package runtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// readyTimeout bounds each check so one hung dependency cannot stall the probe.
const readyTimeout = 2 * time.Second

// NewRouter returns a chi router carrying /healthz, /readyz and the Prometheus /metrics endpoint.
func NewRouter(checks ...ReadyCheck) chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(checks))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readyz runs the checks concurrently and reports failures in declaration order.
func readyz(checks []ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failures := make([]string, len(checks))
		var g errgroup.Group
		for i, check := range checks {
			if check.Check == nil {
				continue
			}
			g.Go(func() error {
				ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
				defer cancel()
				if err := check.Check(ctx); err != nil {
					name := check.Name
					if name == "" {
						name = "dependency"
					}
					failures[i] = name + ": " + err.Error()
				}
				return nil
			})
		}
		_ = g.Wait()

		var failed []string
		for _, f := range failures {
			if f != "" {
				failed = append(failed, f)
			}
		}
		if len(failed) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(failed, "; ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns the /metrics scrape endpoint backed by the
// Prometheus registry, or nil when metrics are disabled.
func (p Providers) MetricsHandler() http.Handler {
	if p.Registry == nil {
		return nil
	}

	return promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{})
}

// Package exporters provides HTTP and SSE exporters for metrics.
package exporters

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler returns the handler served on /metrics. Bridge counters are
// promauto-registered, so the default gatherer sees them. A collector that
// fails is logged and skipped rather than failing the whole scrape.
func HTTPHandler() http.Handler {
	return HandlerFor(prometheus.DefaultGatherer, prometheus.DefaultRegisterer, slog.Default())
}

// HandlerFor serves metrics from gatherer and counts its own scrapes in reg.
func HandlerFor(gatherer prometheus.Gatherer, reg prometheus.Registerer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:          promLogger{logger: logger.With("component", "metrics-http")},
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	}))
}

// promLogger adapts slog to promhttp's Println-style error log.
type promLogger struct {
	logger *slog.Logger
}

func (l promLogger) Println(v ...any) {
	l.logger.Warn("Metrics scrape error", "detail", fmt.Sprint(v...))
}

package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics owns a private registry so tests and short-lived CLI runs never
// touch the global default registry.
type Metrics struct {
	registry       *prometheus.Registry
	filesTotal     *prometheus.CounterVec
	fileDuration   *prometheus.HistogramVec
	activeFiles    prometheus.Gauge
	pixelsIn       prometheus.Counter
	pixelsOut      prometheus.Counter
	bytesWritten   prometheus.Counter
	mirrorFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "downsize_files_total",
			Help: "Files handled, by outcome (resized, within_bounds, failed, unsupported).",
		}, []string{"outcome"}),
		fileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "downsize_file_duration_seconds",
			Help:    "Time spent handling one input file.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		activeFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "downsize_active_files",
			Help: "Files currently being processed.",
		}),
		pixelsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downsize_source_pixels_total",
			Help: "Pixels decoded from resized source images.",
		}),
		pixelsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downsize_output_pixels_total",
			Help: "Pixels written to resized outputs.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downsize_output_bytes_total",
			Help: "Encoded bytes written to resized outputs.",
		}),
		mirrorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "downsize_mirror_failures_total",
			Help: "Outputs that could not be mirrored to object storage.",
		}),
	}

	registry.MustRegister(
		m.filesTotal,
		m.fileDuration,
		m.activeFiles,
		m.pixelsIn,
		m.pixelsOut,
		m.bytesWritten,
		m.mirrorFailures,
	)
	return m
}

// Begin marks a file as in flight; the returned func records its outcome.
func (m *Metrics) Begin() func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	startedAt := time.Now()
	m.activeFiles.Inc()
	return func(outcome string) {
		m.activeFiles.Dec()
		m.filesTotal.WithLabelValues(outcome).Inc()
		m.fileDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
	}
}

func (m *Metrics) ObserveUnsupported() {
	if m == nil {
		return
	}
	m.filesTotal.WithLabelValues("unsupported").Inc()
}

func (m *Metrics) ObserveResize(sourcePixels, outputPixels int64, bytes int) {
	if m == nil {
		return
	}
	m.pixelsIn.Add(float64(sourcePixels))
	m.pixelsOut.Add(float64(outputPixels))
	m.bytesWritten.Add(float64(bytes))
}

func (m *Metrics) ObserveMirrorFailure() {
	if m == nil {
		return
	}
	m.mirrorFailures.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push sends the registry to a Prometheus Pushgateway, replacing the previous
// push for the same job.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job string) error {
	if strings.TrimSpace(gatewayURL) == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

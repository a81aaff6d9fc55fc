package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns the scraper's Prometheus collectors and their registry.
// All methods are safe to call on a nil *Recorder.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	booksTotal      *prometheus.CounterVec
	retryPauses     prometheus.Counter
	catalogBooks    prometheus.Gauge
	catalogFlushes  prometheus.Counter
	pagesRendered   prometheus.Counter
}

// NewRecorder registers the scraper collectors on a fresh registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tululu_http_requests_total",
			Help: "Total number of HTTP requests issued to the book site",
		}, []string{"outcome"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tululu_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		booksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tululu_books_total",
			Help: "Books processed, by outcome status",
		}, []string{"status"}),
		retryPauses: factory.NewCounter(prometheus.CounterOpts{
			Name: "tululu_connection_retry_pauses_total",
			Help: "Pipeline pauses caused by connection failures",
		}),
		catalogBooks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tululu_catalog_books",
			Help: "Books in the catalog at the last flush",
		}),
		catalogFlushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "tululu_catalog_flushes_total",
			Help: "Times the metadata file was written",
		}),
		pagesRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "tululu_render_pages_total",
			Help: "Static catalog pages rendered",
		}),
	}
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveRequest counts one HTTP request and its duration under outcome
func (r *Recorder) ObserveRequest(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(outcome).Inc()
	r.requestDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncBook counts one processed book
func (r *Recorder) IncBook(status string) {
	if r == nil {
		return
	}
	r.booksTotal.WithLabelValues(status).Inc()
}

func (r *Recorder) IncRetryPause() {
	if r == nil {
		return
	}
	r.retryPauses.Inc()
}

// CatalogFlushed records a metadata write of n books
func (r *Recorder) CatalogFlushed(n int) {
	if r == nil {
		return
	}
	r.catalogFlushes.Inc()
	r.catalogBooks.Set(float64(n))
}

func (r *Recorder) AddPagesRendered(n int) {
	if r == nil {
		return
	}
	r.pagesRendered.Add(float64(n))
}

// WriteTextfile dumps the registry in the node_exporter textfile format
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for extraction traffic.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal *prometheus.CounterVec

	// Extraction
	ExtractionsTotal      *prometheus.CounterVec
	ExtractionDuration    *prometheus.HistogramVec
	MatchedSegmentsTotal  *prometheus.CounterVec
	ExtractionTextBytes   prometheus.Histogram
	ExtractionErrorsTotal *prometheus.CounterVec
	BatchRecordsTotal     *prometheus.CounterVec
	EventsPublishedTotal  *prometheus.CounterVec
}

// New returns the process-wide metrics, registering them on first use.
//
// Metrics:
//   - parsedtext_http_requests_total{route,status}
//   - parsedtext_extractions_total{endpoint,cached}
//   - parsedtext_extraction_duration_seconds{endpoint}
//   - parsedtext_matched_segments_total{descriptor}
//   - parsedtext_extraction_text_bytes
//   - parsedtext_extraction_errors_total{reason}
//   - parsedtext_batch_records_total{result}
//   - parsedtext_events_published_total{result}
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "parsedtext_http_requests_total",
					Help: "Total number of API requests by route and status",
				},
				[]string{"route", "status"},
			),

			ExtractionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "parsedtext_extractions_total",
					Help: "Total number of served extractions",
				},
				[]string{"endpoint", "cached"},
			),

			ExtractionDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "parsedtext_extraction_duration_seconds",
					Help:    "Duration of extraction requests in seconds",
					Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
				},
				[]string{"endpoint"},
			),

			MatchedSegmentsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "parsedtext_matched_segments_total",
					Help: "Total number of matched segments by option",
				},
				[]string{"descriptor"},
			),

			ExtractionTextBytes: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "parsedtext_extraction_text_bytes",
					Help:    "Size of extracted texts in bytes",
					Buckets: prometheus.ExponentialBuckets(64, 4, 8),
				},
			),

			ExtractionErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "parsedtext_extraction_errors_total",
					Help: "Total number of rejected extraction requests",
				},
				[]string{"reason"},
			),

			BatchRecordsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "parsedtext_batch_records_total",
					Help: "Total number of batch records processed",
				},
				[]string{"result"}, // "ok" or "failed"
			),

			EventsPublishedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "parsedtext_events_published_total",
					Help: "Total number of extraction events published to NATS",
				},
				[]string{"result"}, // "ok" or "error"
			),
		}
	})
	return globalMetrics
}

// ObserveExtraction records one served extraction
func (m *Metrics) ObserveExtraction(endpoint string, cached bool, textBytes int, byDescriptor map[string]int, elapsed time.Duration) {
	m.ExtractionsTotal.WithLabelValues(endpoint, strconv.FormatBool(cached)).Inc()
	m.ExtractionDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
	m.ExtractionTextBytes.Observe(float64(textBytes))
	for name, count := range byDescriptor {
		m.MatchedSegmentsTotal.WithLabelValues(name).Add(float64(count))
	}
}

// ObserveRequest records one API request
func (m *Metrics) ObserveRequest(route string, status int) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

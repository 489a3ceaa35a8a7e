package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "artifactory"

const (
	KindFile    = "file"
	KindArchive = "archive"
)

type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	downloads     *prometheus.CounterVec
	uploadedFiles prometheus.Counter
	uploadedBytes prometheus.Counter
	uploadErrors  prometheus.Counter
	unresolved    prometheus.Counter
	catalogSize   prometheus.GaugeFunc
}

// New registers all collectors on a private registry. catalogSize reports the current number of records.
func New(catalogSize func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_files_total",
			Help:      "Files served, as a single file or as an archive entry.",
		}, []string{"kind"}),
		uploadedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_files_total",
			Help:      "Files accepted by upload.",
		}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes written by upload.",
		}),
		uploadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_errors_total",
			Help:      "Uploaded parts that could not be stored.",
		}),
		unresolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresolved_names_total",
			Help:      "Requested names missing from the catalog.",
		}),
	}

	m.catalogSize = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "catalog_records",
		Help:      "Records currently held by the catalog.",
	}, func() float64 {
		return float64(catalogSize())
	})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.downloads,
		m.uploadedFiles,
		m.uploadedBytes,
		m.uploadErrors,
		m.unresolved,
		m.catalogSize,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) FileServed() {
	m.downloads.WithLabelValues(KindFile).Inc()
}

func (m *Metrics) ArchiveServed(entries, unresolved int) {
	m.downloads.WithLabelValues(KindArchive).Add(float64(entries))
	m.unresolved.Add(float64(unresolved))
}

func (m *Metrics) FileUploaded(size int64) {
	m.uploadedFiles.Inc()
	m.uploadedBytes.Add(float64(size))
}

func (m *Metrics) UploadFailed() {
	m.uploadErrors.Inc()
}

// Middleware counts every request served by next under the given route label.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}

	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true

	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	conversions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fileconverter",
			Name:      "conversions_total",
			Help:      "Total conversion requests by kind (document, image, pdf_render, merge) and result",
		},
		[]string{"kind", "result"},
	)

	conversionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fileconverter",
			Name:      "conversion_duration_seconds",
			Help:      "Duration of conversions by kind",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"kind"},
	)

	uploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fileconverter",
			Name:      "upload_bytes_total",
			Help:      "Total bytes spooled to temp storage from uploads and remote sources",
		},
	)

	outputBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fileconverter",
			Name:      "output_bytes_total",
			Help:      "Total bytes of converted output streamed back to clients",
		},
	)

	diskFree = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fileconverter",
			Name:      "disk_free_bytes",
			Help:      "Free bytes on the volume holding the temp root, as last sampled",
		},
	)

	admissionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fileconverter",
			Name:      "admission_rejections_total",
			Help:      "Requests rejected by the disk-space admission gate, by endpoint",
		},
		[]string{"endpoint"},
	)

	tempPurges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fileconverter",
			Name:      "temp_purges_total",
			Help:      "Destructive purges of the whole temp root triggered by low disk space",
		},
	)

	releasedFiles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fileconverter",
			Name:      "released_files_total",
			Help:      "Temp files removed by per-request release",
		},
	)

	janitorSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fileconverter",
			Name:      "janitor_swept_dirs_total",
			Help:      "Stale request directories removed by the background janitor, by result",
		},
		[]string{"result"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(conversions, conversionDuration, uploadBytes, outputBytes, diskFree, admissionRejections, tempPurges, releasedFiles, janitorSweeps)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveConversion(kind, result string, dur time.Duration) {
	conversions.WithLabelValues(kind, result).Inc()
	conversionDuration.WithLabelValues(kind).Observe(dur.Seconds())
}

func AddUploadBytes(n int64) {
	if n > 0 {
		uploadBytes.Add(float64(n))
	}
}

func AddOutputBytes(n int64) {
	if n > 0 {
		outputBytes.Add(float64(n))
	}
}

func SetDiskFree(bytes int64) { diskFree.Set(float64(bytes)) }

func IncAdmissionRejected(endpoint string) { admissionRejections.WithLabelValues(endpoint).Inc() }

func IncPurge() { tempPurges.Inc() }

func AddReleasedFiles(n int) {
	if n > 0 {
		releasedFiles.Add(float64(n))
	}
}

func IncJanitorSwept(result string) { janitorSweeps.WithLabelValues(result).Inc() }

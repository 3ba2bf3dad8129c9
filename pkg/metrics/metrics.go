// Package metrics exposes the ingestion pipeline's prometheus
// instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest holds the pipeline counters. Register one instance per process.
type Ingest struct {
	FilesProcessed    *prometheus.CounterVec
	ProductsIngested  prometheus.Counter
	PricesRecorded    prometheus.Counter
	RecordsRejected   prometheus.Counter
	ImportErrors      prometheus.Counter
	ProcessingSeconds prometheus.Histogram
}

// NewIngest registers the ingest metrics on the given registerer.
func NewIngest(reg prometheus.Registerer) *Ingest {
	factory := promauto.With(reg)
	return &Ingest{
		FilesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_files_total",
			Help: "Price list files processed, partitioned by outcome.",
		}, []string{"status"}),
		ProductsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_products_total",
			Help: "Master products created or updated by ingestion.",
		}),
		PricesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_prices_total",
			Help: "Supplier price observations recorded.",
		}),
		RecordsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_records_rejected_total",
			Help: "Extracted records dropped during adaptation.",
		}),
		ImportErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ingest_errors_total",
			Help: "Rows that failed durable import.",
		}),
		ProcessingSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ingest_file_seconds",
			Help:    "Wall-clock seconds spent per file.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}

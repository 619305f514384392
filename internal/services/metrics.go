package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus指标,通过 /metrics 暴露
var (
	documentsUploadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "documents_uploaded_total",
		Help: "Total number of document uploads accepted",
	})

	documentsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "documents_processed_total",
		Help: "Total number of document pipeline completions by outcome",
	}, []string{"status"}) // status: ready, failed

	documentProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "document_processing_duration_seconds",
		Help:    "Duration of the full document processing pipeline",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	chunksIndexedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chunks_indexed_total",
		Help: "Total number of chunks written to the vector store",
	})

	chatQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_queries_total",
		Help: "Total number of chat queries by outcome",
	}, []string{"status"}) // status: success, empty, error

	chatQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_query_duration_seconds",
		Help:    "End to end duration of chat queries",
		Buckets: prometheus.DefBuckets,
	})

	pagesRenderedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pages_rendered_total",
		Help: "Total number of PDF pages rendered to images",
	})
)

func observeProcessing(start time.Time, status string) {
	documentsProcessedTotal.WithLabelValues(status).Inc()
	documentProcessingDuration.Observe(time.Since(start).Seconds())
}

func observeChatQuery(start time.Time, status string) {
	chatQueriesTotal.WithLabelValues(status).Inc()
	chatQueryDuration.Observe(time.Since(start).Seconds())
}

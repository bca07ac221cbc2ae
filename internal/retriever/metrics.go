package retriever

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "answerd_retrieval_duration_seconds",
		Help:    "End-to-end retrieval time: query embedding plus vector search.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	retrievalResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "answerd_retrieval_results",
		Help:    "Passages returned per retrieval after thresholding.",
		Buckets: prometheus.LinearBuckets(0, 1, 11),
	})
)

func observeRetrieval(start time.Time, results int) {
	retrievalDuration.Observe(time.Since(start).Seconds())
	retrievalResults.Observe(float64(results))
}

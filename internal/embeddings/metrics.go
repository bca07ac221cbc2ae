package embeddings

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	embeddingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "answerd_embeddings_generation_duration_seconds",
		Help:    "Time spent generating embeddings, by provider and operation.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"provider", "operation"})

	embeddingBatchSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "answerd_embeddings_batch_size",
		Help:    "Number of texts per embedding call.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	}, []string{"provider", "operation"})

	embeddingErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "answerd_embeddings_errors_total",
		Help: "Failed embedding calls, by provider and operation.",
	}, []string{"provider", "operation"})
)

// observeEmbedding records one embedding call. Providers call it from a
// deferred closure so the error observed is the one actually returned.
func observeEmbedding(provider, operation string, start time.Time, batchSize int, err error) {
	embeddingDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
	embeddingBatchSize.WithLabelValues(provider, operation).Observe(float64(batchSize))
	if err != nil {
		embeddingErrors.WithLabelValues(provider, operation).Inc()
	}
}

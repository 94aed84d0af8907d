package voting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// voteTotal counts applied votes by outcome
	voteTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reddit_votes_total",
		Help: "Votes applied by outcome (created, unchanged, changed, error)",
	}, []string{"outcome"})

	voteRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reddit_vote_retries_total",
		Help: "Vote transactions retried after a transient conflict",
	})

	voteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reddit_vote_duration_seconds",
		Help:    "Vote application latency including retries",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	})
)

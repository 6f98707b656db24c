package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Completion metrics. Outcome is "ok" or the error Kind; token direction is
// "input" or "output". Cost accumulates in USD so dashboards can graph spend
// without re-deriving the price table.
var (
	completionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "Completion calls by outcome.",
		},
		[]string{"outcome"},
	)

	completionRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llm_retries_total",
			Help: "Completion attempts repeated after a transient failure.",
		},
	)

	completionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Tokens consumed by completions, by direction.",
		},
		[]string{"direction"},
	)

	completionCost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llm_cost_usd_total",
			Help: "Estimated completion spend in USD.",
		},
	)
)

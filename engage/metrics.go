package engage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("engage")

var cyclesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "engagebot_cycles_total",
	Help: "Number of engagement cycles run, by outcome",
}, []string{"result"})

var cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "engagebot_cycle_duration_sec",
	Help:    "Wall-clock duration of engagement cycles",
	Buckets: prometheus.ExponentialBuckets(1, 2, 12),
})

var fetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "engagebot_fetch_errors_total",
	Help: "Number of failed candidate fetches",
}, []string{"source"})

var candidatesSeen = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "engagebot_candidates_total",
	Help: "Number of candidates handed to the action processor",
}, []string{"action"})

var dedupeSkips = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "engagebot_dedupe_skips_total",
	Help: "Number of candidates skipped because they were already processed",
}, []string{"action"})

var actionsAttempted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "engagebot_actions_total",
	Help: "Number of remote actions attempted, by outcome",
}, []string{"action", "result"})

var persistErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "engagebot_persist_errors_total",
	Help: "Number of dedupe writes which failed to reach durable storage",
}, []string{"action"})

package baker

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	errTypeLabel = "error_type"
	outcomeLabel = "outcome"
	stateLabel   = "state"

	outcomeComplete = "complete"
	outcomeStalled  = "stalled"
)

var (
	bakeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bake_duration_seconds",
		Help:    "The time to bake an escape field.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{
		outcomeLabel,
	})

	bakeCells = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bake_cells",
		Help: "The number of baked cells by state.",
	}, []string{
		stateLabel,
	})

	bakeRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bake_propagation_rounds",
		Help:    "The number of propagation rounds per bake.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	bakeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bake_errors",
		Help: "The errors that occured while baking an escape field.",
	}, []string{
		errTypeLabel,
	})
)

func instrumentBake(stats Stats) {
	outcome := outcomeComplete
	if stats.Stalled {
		outcome = outcomeStalled
	}

	bakeDuration.
		With(prometheus.Labels{outcomeLabel: outcome}).
		Observe(stats.Duration.Seconds())

	bakeCells.With(prometheus.Labels{stateLabel: "outside"}).Add(float64(stats.Cells - stats.Inside))
	bakeCells.With(prometheus.Labels{stateLabel: "seeded"}).Add(float64(stats.Seeded))
	bakeCells.With(prometheus.Labels{stateLabel: "propagated"}).Add(float64(stats.Propagated))
	bakeCells.With(prometheus.Labels{stateLabel: "unresolved"}).Add(float64(stats.Unresolved))

	bakeRounds.Observe(float64(stats.Rounds))
}

func instrumentBakeError(err error) {
	bakeErrors.
		With(prometheus.Labels{errTypeLabel: errors.Type(err)}).
		Inc()
}

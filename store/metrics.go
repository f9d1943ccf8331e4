package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultLabel = "result"
	opLabel     = "operation"
)

var (
	cacheAccesses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lookup_cache_accesses",
		Help: "The number of lookup cache accesses.",
	}, []string{
		resultLabel,
	})

	objectTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "object_store_transfers",
		Help: "The number of artifacts transferred to or from the object store.",
	}, []string{
		opLabel,
		resultLabel,
	})
)

func instrumentCacheAccess(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}

	cacheAccesses.
		With(prometheus.Labels{resultLabel: result}).
		Inc()
}

func instrumentObjectTransfer(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}

	objectTransfers.
		With(prometheus.Labels{
			opLabel:     op,
			resultLabel: result,
		}).
		Inc()
}

package http

import (
	"context"

	"github.com/aukilabs/escapefield/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sourceLabel = "source"
	resultLabel = "result"

	sourceHTTP   = "http"
	sourceStream = "stream"

	resultFound        = "found"
	resultMiss         = "miss"
	resultUnknownField = "unknown_field"
	resultBadQuery     = "bad_query"
)

var lookupQueries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lookup_queries",
	Help: "The number of direction queries by result.",
}, []string{
	sourceLabel,
	resultLabel,
})

func instrumentQuery(source, result string) {
	lookupQueries.
		With(prometheus.Labels{
			sourceLabel: source,
			resultLabel: result,
		}).
		Inc()
}

func instrumentAnswer(source string, a websocket.Answer) {
	if a.Found {
		instrumentQuery(source, resultFound)
		return
	}
	instrumentQuery(source, resultMiss)
}

type handlerWithQueryMetrics struct {
	websocket.Handler
}

func (h handlerWithQueryMetrics) HandleQuery(ctx context.Context, q websocket.Query) (websocket.Answer, error) {
	a, err := h.Handler.HandleQuery(ctx, q)
	if err == nil {
		instrumentAnswer(sourceStream, a)
	}
	return a, err
}

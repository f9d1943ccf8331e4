package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel = "error_type"
	resultLabel  = "result"
)

var (
	wsConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of clients connected to direction streams.",
	})

	wsReceivedQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_received_queries",
		Help: "The number of queries received from WebSocket connections.",
	})

	wsReceiveError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_receive_errors",
		Help: "The errors that occured while receiving a websocket query.",
	}, []string{
		errTypeLabel,
	})

	wsSentAnswers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_answers",
		Help: "The number of answers sent to WebSocket connections.",
	}, []string{
		resultLabel,
	})

	wsSendError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "The errors that occured while sending a websocket answer.",
	}, []string{
		errTypeLabel,
	})

	wsQueryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ws_query_latency",
		Help:    "The time to answer a WebSocket query.",
		Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
	})
)

// HandlerWithMetrics decorates h with Prometheus metrics.
func HandlerWithMetrics(h Handler) Handler {
	return &handlerWithMetrics{
		Handler: h,
	}
}

type handlerWithMetrics struct {
	Handler
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	wsConnectedClients.Inc()
	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	wsConnectedClients.Dec()
	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandleQuery(ctx context.Context, q Query) (Answer, error) {
	start := time.Now()
	defer func() {
		wsQueryLatency.Observe(time.Since(start).Seconds())
	}()

	return h.Handler.HandleQuery(ctx, q)
}

func (h *handlerWithMetrics) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Query, error) {
		q, err := receive()
		if err != nil {
			if !isClosed(err) {
				wsReceiveError.
					With(prometheus.Labels{errTypeLabel: errors.Type(err)}).
					Inc()
			}
			return q, err
		}

		wsReceivedQueries.Inc()
		return q, nil
	}
}

func (h *handlerWithMetrics) Sender() Sender {
	send := h.Handler.Sender()

	return func(a Answer) error {
		if err := send(a); err != nil {
			wsSendError.
				With(prometheus.Labels{errTypeLabel: errors.Type(err)}).
				Inc()
			return err
		}

		result := missCounter
		if a.Found {
			result = foundCounter
		}
		wsSentAnswers.
			With(prometheus.Labels{resultLabel: result}).
			Inc()
		return nil
	}
}

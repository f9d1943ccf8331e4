package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	fieldIDTag = "field_id"

	foundCounter = "found"
	missCounter  = "miss"
)

// HandlerWithLogs decorates h with connection logs and a periodic summary of
// the answered queries.
func HandlerWithLogs(h Handler, fieldID string, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		fieldID:            fieldID,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	fieldID string

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	entry := logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag(fieldIDTag, h.fieldID)

	if req := conn.Request(); req != nil {
		entry = entry.WithTag("http_headers", struct {
			UserAgent     string `json:"user_agent,omitempty"`
			XForwardedFor string `json:"x_forwarded_for,omitempty"`
		}{
			UserAgent:     req.UserAgent(),
			XForwardedFor: req.Header.Get("X-Forwarded-For"),
		})
	}

	entry.Info("new client is connected")
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag(fieldIDTag, h.fieldID)

	if err != nil && !isClosed(err) {
		entry.Warn(errors.New("client disconnected").Wrap(err))
		return
	}
	entry.Info("client disconnected")
}

func (h *handlerWithLogs) HandleQuery(ctx context.Context, q Query) (Answer, error) {
	a, err := h.Handler.HandleQuery(ctx, q)
	if err != nil {
		return a, err
	}

	if a.Found {
		h.incCounter(foundCounter)
	} else {
		h.incCounter(missCounter)
	}
	return a, nil
}

func (h *handlerWithLogs) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Query, error) {
		q, err := receive()
		if err != nil && !isClosed(err) {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag(fieldIDTag, h.fieldID).
				Error(errors.New("receiving query failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag(fieldIDTag, h.fieldID).
				WithTag("request_id", q.RequestID).
				Debug("query received")
		}
		return q, err
	}
}

func (h *handlerWithLogs) Sender() Sender {
	send := h.Handler.Sender()

	return func(a Answer) error {
		err := send(a)
		if err != nil && !isClosed(err) {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag(fieldIDTag, h.fieldID).
				WithTag("request_id", a.RequestID).
				Error(errors.New("sending answer failed").Wrap(err))
		}
		return err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(name string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[name]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	entry := logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag(fieldIDTag, h.fieldID).
		WithTag("time_interval", h.summaryInterval)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("query summary")
}

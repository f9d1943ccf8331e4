package websocket

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/stretchr/testify/require"
)

func TestHandlerWithLogsIncCounter(t *testing.T) {
	h := HandlerWithLogs(&DirectionHandler{Querier: testLookup()}, "test-field", time.Second).(*handlerWithLogs)
	defer h.Close()

	_, err := h.HandleQuery(context.Background(), Query{X: 10.5, Y: 0.5, Z: 0.5})
	require.NoError(t, err)
	_, err = h.HandleQuery(context.Background(), Query{})
	require.NoError(t, err)

	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()
	require.Equal(t, 1, h.counter[foundCounter])
	require.Equal(t, 1, h.counter[missCounter])
}

func TestHandlerWithLogsLogSummary(t *testing.T) {
	h := HandlerWithLogs(&DirectionHandler{clientID: "test-client"}, "test-field", time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter(foundCounter)
	h.incCounter(foundCounter)
	h.incCounter(missCounter)

	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
	})

	h.logSummary()
	require.Empty(t, h.counter)

	logString := b.String()
	require.Contains(t, logString, `"found":2`)
	require.Contains(t, logString, `"miss":1`)
	require.Contains(t, logString, fmt.Sprintf(`"%s":"%s"`, logs.ClientIDTag, "test-client"))
	require.Contains(t, logString, `"field_id":"test-field"`)
	t.Log(logString)
}

func TestHandlerWithLogsStartSummaryWorker(t *testing.T) {
	var wg sync.WaitGroup
	var once sync.Once
	var mutex sync.Mutex

	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		fmt.Fprint(&b, e)
		once.Do(wg.Done)
	})

	wg.Add(1)
	h := HandlerWithLogs(&DirectionHandler{}, "test-field", time.Millisecond).(*handlerWithLogs)
	defer h.Close()

	// No summary is logged until a counter is incremented.
	h.incCounter(missCounter)

	wg.Wait()

	mutex.Lock()
	defer mutex.Unlock()
	require.NotEmpty(t, b.String())
}

package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/escapefield/field"
	efhttp "github.com/aukilabs/escapefield/http"
	"github.com/aukilabs/escapefield/store"
	"github.com/aukilabs/escapefield/websocket"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/gorilla/mux"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

type testProvider struct{}

func (testProvider) List(ctx context.Context) ([]store.Record, error) {
	return []store.Record{{ID: "hall"}}, nil
}

func (testProvider) Get(ctx context.Context, id string) (store.Record, error) {
	if id != "hall" {
		return store.Record{}, errors.New("field not found").WithType(store.ErrTypeFieldNotFound)
	}
	return store.Record{ID: id, CellSize: 1, EntryCount: 1}, nil
}

func (p testProvider) Lookup(ctx context.Context, id string) (*field.Lookup, error) {
	if _, err := p.Get(ctx, id); err != nil {
		return nil, err
	}
	return field.NewLookup(field.BakedField{
		CellSize: 1,
		Entries: []field.Entry{
			{Position: r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, Direction: r3.Vec{X: 1}},
		},
	}), nil
}

func newQueryServer(t *testing.T) *httptest.Server {
	r := mux.NewRouter()
	efhttp.FieldRoutes(r, testProvider{}, efhttp.StreamOptions{IdleTimeout: time.Minute})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func TestRun(t *testing.T) {
	server := newQueryServer(t)

	t.Run("found", func(t *testing.T) {
		res, err := Run(context.Background(), Options{Endpoint: "http://localfield"}, Request{
			Endpoint: server.URL,
			FieldID:  "hall",
			Position: websocket.Vec3{X: 0.5, Y: 0.5, Z: 0.5},
		})
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, res.Status)
		require.True(t, res.Found)
		require.Equal(t, "http://localfield", res.FromEndpoint)
		require.Equal(t, server.URL, res.ToEndpoint)
		require.Empty(t, res.Error)
	})

	t.Run("miss", func(t *testing.T) {
		res, err := Run(context.Background(), Options{}, Request{
			Endpoint: server.URL + "/",
			FieldID:  "hall",
			Position: websocket.Vec3{X: 12},
		})
		require.NoError(t, err)
		require.Equal(t, StatusSuccess, res.Status)
		require.False(t, res.Found)
	})

	t.Run("unknown field", func(t *testing.T) {
		res, err := Run(context.Background(), Options{}, Request{
			Endpoint: server.URL,
			FieldID:  "cellar",
		})
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeSmokeTestFailed))
		require.Equal(t, StatusFailed, res.Status)
		require.NotEmpty(t, res.Error)
	})

	t.Run("offline", func(t *testing.T) {
		res, err := Run(context.Background(), Options{}, Request{
			Endpoint: "http://127.0.0.1:1",
			FieldID:  "hall",
			Timeout:  time.Second,
		})
		require.Error(t, err)
		require.Equal(t, StatusFailed, res.Status)
		require.Zero(t, res.LatencyMilliSec)
	})
}

func TestHandleSmokeTest(t *testing.T) {
	server := newQueryServer(t)
	results := make(chan Results, 1)

	smokeTest := HandleSmokeTest(context.Background(), Options{
		Endpoint: "http://localfield",
		SendResult: func(_ context.Context, res Results) error {
			results <- res
			return nil
		},
	})

	body, err := json.Marshal(Request{
		Endpoint: server.URL,
		FieldID:  "hall",
		Position: websocket.Vec3{X: 0.2, Y: 0.9, Z: 0.4},
		Timeout:  time.Second * 2,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	smokeTest.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://localfield/smoke-test", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case res := <-results:
		require.Equal(t, StatusSuccess, res.Status)
		require.True(t, res.Found)
		require.Equal(t, "hall", res.FieldID)

	case <-time.After(time.Second * 5):
		t.Fatal("no smoke test result")
	}
}

func TestHandleSmokeTestBadRequest(t *testing.T) {
	smokeTest := HandleSmokeTest(context.Background(), Options{
		SendResult: func(context.Context, Results) error {
			t.Error("smoke test should not run")
			return nil
		},
	})

	for _, body := range []string{"{", `{"endpoint":"http://localhost"}`} {
		rec := httptest.NewRecorder()
		smokeTest.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewReader([]byte(body))))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestToWebsocketURL(t *testing.T) {
	u, err := toWebsocketURL("http://localhost:4100/fields/a/stream")
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:4100/fields/a/stream", u)

	u, err = toWebsocketURL("https://fields.example.com/fields/a/stream")
	require.NoError(t, err)
	require.Equal(t, "wss://fields.example.com/fields/a/stream", u)

	_, err = toWebsocketURL("ftp://localhost")
	require.Error(t, err)
}

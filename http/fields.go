package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aukilabs/escapefield/field"
	"github.com/aukilabs/escapefield/geom"
	"github.com/aukilabs/escapefield/store"
	"github.com/aukilabs/escapefield/websocket"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/gorilla/mux"
	"github.com/segmentio/encoding/json"
	xwebsocket "golang.org/x/net/websocket"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	ErrTypeBadQuery = "bad_query"

	fieldsPrefix = "/fields"
)

// FieldProvider is the interface that describes where the query service gets
// baked fields from.
type FieldProvider interface {
	// Lists the stored fields.
	List(ctx context.Context) ([]store.Record, error)

	// Returns the record of a field.
	Get(ctx context.Context, id string) (store.Record, error)

	// Returns the lookup of a field.
	Lookup(ctx context.Context, id string) (*field.Lookup, error)
}

// CatalogProvider serves fields from a catalog, with lookups kept in a cache.
type CatalogProvider struct {
	Catalog *store.Catalog
	Cache   *store.LookupCache
}

func (p CatalogProvider) List(ctx context.Context) ([]store.Record, error) {
	return p.Catalog.List(ctx)
}

func (p CatalogProvider) Get(ctx context.Context, id string) (store.Record, error) {
	return p.Catalog.Get(ctx, id)
}

func (p CatalogProvider) Lookup(ctx context.Context, id string) (*field.Lookup, error) {
	return p.Cache.Get(ctx, id)
}

type StreamOptions struct {
	// The time until an idle stream client is disconnected.
	IdleTimeout time.Duration

	// The duration between each query summary log of a stream.
	LogSummaryInterval time.Duration
}

// FieldRoutes registers the field query routes on r.
func FieldRoutes(r *mux.Router, p FieldProvider, opts StreamOptions) {
	if opts.LogSummaryInterval <= 0 {
		opts.LogSummaryInterval = time.Minute
	}

	h := fieldHandler{
		provider: p,
		opts:     opts,
	}

	r.HandleFunc(fieldsPrefix, h.handleList).Methods(http.MethodGet)
	r.HandleFunc(fieldsPrefix+"/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc(fieldsPrefix+"/{id}/direction", h.handleDirection).Methods(http.MethodGet)
	r.HandleFunc(fieldsPrefix+"/{id}/stream", h.handleStream)
}

type fieldHandler struct {
	provider FieldProvider
	opts     StreamOptions
}

func (h fieldHandler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.provider.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h fieldHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.provider.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h fieldHandler) handleDirection(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	pos, err := parsePosition(r)
	if err != nil {
		instrumentQuery(sourceHTTP, resultBadQuery)
		writeError(w, r, err)
		return
	}

	lookup, err := h.provider.Lookup(r.Context(), id)
	if err != nil {
		instrumentQuery(sourceHTTP, resultUnknownField)
		writeError(w, r, err)
		return
	}

	a, _ := (&websocket.DirectionHandler{Querier: lookup}).HandleQuery(r.Context(), websocket.Query{
		X: pos.X,
		Y: pos.Y,
		Z: pos.Z,
	})
	instrumentAnswer(sourceHTTP, a)
	writeJSON(w, http.StatusOK, a)
}

func (h fieldHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	lookup, err := h.provider.Lookup(r.Context(), id)
	if err != nil {
		instrumentQuery(sourceStream, resultUnknownField)
		writeError(w, r, err)
		return
	}

	xwebsocket.Server{
		Handler: func(conn *xwebsocket.Conn) {
			defer conn.Close()

			var sh websocket.Handler = &websocket.DirectionHandler{
				Querier:           lookup,
				ClientIdleTimeout: h.opts.IdleTimeout,
			}
			sh = websocket.HandlerWithLogs(sh, id, h.opts.LogSummaryInterval)
			sh = websocket.HandlerWithMetrics(sh)
			sh = handlerWithQueryMetrics{Handler: sh}
			defer sh.Close()

			websocket.Handle(r.Context(), conn, sh)
		},
	}.ServeHTTP(w, r)
}

func parsePosition(r *http.Request) (r3.Vec, error) {
	query := r.URL.Query()

	var coords [3]float64
	for i, name := range []string{"x", "y", "z"} {
		raw := query.Get(name)
		if raw == "" {
			return r3.Vec{}, errors.New("missing coordinate").
				WithType(ErrTypeBadQuery).
				WithTag("coordinate", name)
		}

		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || !geom.IsFiniteScalar(v) {
			return r3.Vec{}, errors.New("invalid coordinate").
				WithType(ErrTypeBadQuery).
				WithTag("coordinate", name).
				WithTag("value", raw)
		}
		coords[i] = v
	}

	return r3.Vec{X: coords[0], Y: coords[1], Z: coords[2]}, nil
}

type errorResponse struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsType(err, store.ErrTypeFieldNotFound):
		status = http.StatusNotFound

	case errors.IsType(err, ErrTypeBadQuery):
		status = http.StatusBadRequest

	default:
		logs.WithTag("method", r.Method).
			WithTag("path", r.URL.Path).
			Error(err)
	}

	writeJSON(w, status, errorResponse{
		Type:    errors.Type(err),
		Message: http.StatusText(status),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.Warn(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

// routeTemplate replaces the field ID of a field route with a placeholder.
func routeTemplate(path string) string {
	rest, ok := strings.CutPrefix(path, fieldsPrefix+"/")
	if !ok || rest == "" {
		return path
	}

	_, tail, _ := strings.Cut(rest, "/")
	if tail == "" {
		return fieldsPrefix + "/{id}"
	}
	return fieldsPrefix + "/{id}/" + tail
}

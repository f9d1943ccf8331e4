package websocket

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// The header where clients can put their ID.
	ClientIDHeader = "X-Client-Id"

	queryChanSize = 64

	defaultIdleTimeout = time.Minute
)

// Query is a direction query sent by a client. Positions are in world space.
type Query struct {
	RequestID uint32  `json:"requestId,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Answer is the response to a Query. Direction is set when Found is true.
type Answer struct {
	RequestID uint32 `json:"requestId,omitempty"`
	Found     bool   `json:"found"`
	Direction *Vec3  `json:"direction,omitempty"`
}

// Receiver reads the next query of a connection.
type Receiver func() (Query, error)

// Sender writes an answer to a connection.
type Sender func(Answer) error

// Handler represents a direction stream handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Answers a direction query.
	HandleQuery(ctx context.Context, q Query) (Answer, error)

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Creates a receiver used to read incoming queries.
	Receiver() Receiver

	// Creates a sender used to write answers.
	Sender() Sender

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Returns the client ID.
	GetClientID() string

	// Releases the handler resources.
	Close()
}

// Querier is the interface that describes a direction lookup.
type Querier interface {
	TryGetDirection(world r3.Vec) (r3.Vec, bool)
}

// DirectionHandler answers queries with the directions of a baked field.
type DirectionHandler struct {
	// The lookup that answers queries.
	Querier Querier

	// The time until an idle client is disconnected.
	ClientIdleTimeout time.Duration

	conn     *websocket.Conn
	clientID string
}

func (h *DirectionHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn

	if req := conn.Request(); req != nil {
		h.clientID = req.Header.Get(ClientIDHeader)
	}
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}
}

func (h *DirectionHandler) HandleQuery(ctx context.Context, q Query) (Answer, error) {
	dir, ok := h.Querier.TryGetDirection(r3.Vec{X: q.X, Y: q.Y, Z: q.Z})
	if !ok {
		return Answer{RequestID: q.RequestID}, nil
	}

	return Answer{
		RequestID: q.RequestID,
		Found:     true,
		Direction: &Vec3{X: dir.X, Y: dir.Y, Z: dir.Z},
	}, nil
}

func (h *DirectionHandler) HandleDisconnect(err error) {
}

func (h *DirectionHandler) Receiver() Receiver {
	return func() (Query, error) {
		var q Query
		err := websocket.JSON.Receive(h.conn, &q)
		return q, err
	}
}

func (h *DirectionHandler) Sender() Sender {
	return func(a Answer) error {
		return websocket.JSON.Send(h.conn, a)
	}
}

func (h *DirectionHandler) IdleTimeout() time.Duration {
	if h.ClientIdleTimeout <= 0 {
		return defaultIdleTimeout
	}
	return h.ClientIdleTimeout
}

func (h *DirectionHandler) GetClientID() string {
	return h.clientID
}

func (h *DirectionHandler) Close() {
}

// Handle serves the queries of a connection until the client leaves, stays
// idle too long or ctx is done.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.HandleConnect(conn)

	queries := make(chan Query, queryChanSize)
	disconnectChan := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		startReceiving(ctx, h.Receiver(), queries, disconnectChan)
	}()

	send := h.Sender()
	idleTimeout := h.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	var err error
	for err == nil {
		select {
		case <-ctx.Done():
			err = ctx.Err()

		case <-idleTimer.C:
			err = errors.New("idle connection").WithTag("duration", idleTimeout)

		case err = <-disconnectChan:

		case q := <-queries:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			a, qerr := h.HandleQuery(ctx, q)
			if qerr != nil {
				err = errors.New("handling query failed").Wrap(qerr)
				break
			}

			if serr := send(a); serr != nil {
				err = errors.New("sending answer failed").Wrap(serr)
			}
		}
	}

	// Closing the connection unblocks the receiver.
	conn.Close()
	cancel()
	wg.Wait()

	h.HandleDisconnect(err)
}

func startReceiving(ctx context.Context, receive Receiver, queries chan<- Query, disconnectChan chan<- error) {
	for {
		q, err := receive()
		if err != nil {
			select {
			case disconnectChan <- err:
			default:
			}
			return
		}

		select {
		case queries <- q:
		case <-ctx.Done():
			return
		}
	}
}

// isClosed reports whether err comes from a connection that was closed by
// either side.
func isClosed(err error) bool {
	return err == io.EOF ||
		stderrors.Is(err, net.ErrClosed) ||
		stderrors.Is(err, context.Canceled)
}

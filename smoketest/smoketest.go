package smoketest

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aukilabs/escapefield/websocket"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	xwebsocket "golang.org/x/net/websocket"
)

const (
	ErrTypeSmokeTestFailed = "smoke_test_failed"

	defaultTimeout = time.Second * 5
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Request asks for a smoke test of the query service reachable at Endpoint,
// by querying the direction at Position in a stored field.
type Request struct {
	Endpoint string         `json:"endpoint"`
	FieldID  string         `json:"fieldId"`
	Position websocket.Vec3 `json:"position"`
	Timeout  time.Duration  `json:"timeout,omitempty"`
}

type Results struct {
	FromEndpoint    string  `json:"fromEndpoint"`
	ToEndpoint      string  `json:"toEndpoint"`
	FieldID         string  `json:"fieldId"`
	Status          Status  `json:"status"`
	Found           bool    `json:"found"`
	LatencyMilliSec float64 `json:"latencyMilliSec"`
	Error           string  `json:"error,omitempty"`
}

type Options struct {
	Endpoint   string
	UserAgent  string
	SendResult func(context.Context, Results) error
}

// HandleSmokeTest starts a smoke test described by the request body and
// answers right away. The results are given to opts.SendResult once the test
// is over.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Warn(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if err := json.Unmarshal(b, &req); err != nil || req.Endpoint == "" || req.FieldID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		go func() {
			res, err := Run(ctx, opts, req)
			if err != nil {
				logs.Warn(err)
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("from_endpoint", opts.Endpoint).
					WithTag("to_endpoint", req.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}

// Run fetches the field record from the target endpoint, then sends a single
// query on its direction stream and waits for the answer.
func Run(ctx context.Context, opts Options, req Request) (Results, error) {
	res := Results{
		FromEndpoint: opts.Endpoint,
		ToEndpoint:   req.Endpoint,
		FieldID:      req.FieldID,
		Status:       StatusFailed,
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fail := func(msg string, err error) (Results, error) {
		err = errors.New(msg).
			WithType(ErrTypeSmokeTestFailed).
			WithTag("to_endpoint", req.Endpoint).
			WithTag("field_id", req.FieldID).
			Wrap(err)
		res.Error = err.Error()
		return res, err
	}

	base := strings.TrimSuffix(req.Endpoint, "/") + "/fields/" + url.PathEscape(req.FieldID)

	if err := getRecord(ctx, opts, base); err != nil {
		return fail("getting field record failed", err)
	}

	streamURL, err := toWebsocketURL(base + "/stream")
	if err != nil {
		return fail("invalid endpoint", err)
	}

	conf, err := xwebsocket.NewConfig(streamURL, opts.origin())
	if err != nil {
		return fail("invalid endpoint", err)
	}
	if opts.UserAgent != "" {
		conf.Header.Set("User-Agent", opts.UserAgent)
	}

	conn, err := conf.DialContext(ctx)
	if err != nil {
		return fail("connecting to direction stream failed", err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	conn.SetDeadline(deadline)

	start := time.Now()
	q := websocket.Query{
		RequestID: 1,
		X:         req.Position.X,
		Y:         req.Position.Y,
		Z:         req.Position.Z,
	}
	if err := xwebsocket.JSON.Send(conn, q); err != nil {
		return fail("sending query failed", err)
	}

	var a websocket.Answer
	if err := xwebsocket.JSON.Receive(conn, &a); err != nil {
		return fail("receiving answer failed", err)
	}
	if a.RequestID != q.RequestID {
		return fail("unexpected answer", errors.New("request id mismatch").
			WithTag("expected", q.RequestID).
			WithTag("received", a.RequestID))
	}

	res.LatencyMilliSec = float64(time.Since(start).Microseconds()) / 1000
	res.Found = a.Found
	res.Status = StatusSuccess
	return res, nil
}

func (o Options) origin() string {
	if o.Endpoint != "" {
		return o.Endpoint
	}
	return "http://localhost"
}

func getRecord(ctx context.Context, opts Options, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode != http.StatusOK {
		return errors.New("unexpected status code").
			WithTag("status_code", res.StatusCode)
	}
	return nil
}

func toWebsocketURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New("unsupported scheme").WithTag("scheme", u.Scheme)
	}
	return u.String(), nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/escapefield/featureflag"
	efhttp "github.com/aukilabs/escapefield/http"
	"github.com/aukilabs/escapefield/smoketest"
	"github.com/aukilabs/escapefield/store"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var (
	// The escapefield version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "escapefield_info",
		Help:        "Escapefield information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Scene              string        `cli:""        env:"ESCAPEFIELD_SCENE"                help:"The YAML bake job to bake."`
	CellSize           float64       `cli:""        env:"ESCAPEFIELD_CELL_SIZE"            help:"Overrides the cell size of the bake job."`
	MaxCells           int           `cli:",hidden" env:"ESCAPEFIELD_MAX_CELLS"            help:"The maximum number of grid cells of a bake."`
	Output             string        `cli:""        env:"ESCAPEFIELD_OUTPUT"               help:"The file where the baked field is written (.json|.vfb)."`
	Database           string        `cli:""        env:"ESCAPEFIELD_DATABASE"             help:"The SQLite file where baked fields are catalogued."`
	Import             string        `cli:""        env:"ESCAPEFIELD_IMPORT"               help:"The ID of a field to download from the object store into the catalog."`
	Preview            previewConfig `cli:""        env:"-"                                help:"Debug preview configuration."`
	S3                 s3Config      `cli:",hidden" env:"-"                                help:"Object store configuration."`
	Serve              bool          `cli:""        env:"ESCAPEFIELD_SERVE"                help:"Serves direction queries on the catalogued fields after baking."`
	Addr               string        `cli:""        env:"ESCAPEFIELD_ADDR"                 help:"Listening address for direction queries."`
	AdminAddr          string        `cli:""        env:"ESCAPEFIELD_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"ESCAPEFIELD_PUBLIC_ENDPOINT"      help:"The public endpoint where this server is reachable."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"ESCAPEFIELD_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle stream client will be disconnected."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"ESCAPEFIELD_LOG_SUMMARY_INTERVAL" help:"The duration between each query summary log by stream."`
	LogLevel           string        `cli:""        env:"ESCAPEFIELD_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"ESCAPEFIELD_LOG_INDENT"           help:"Indent logs."`
	FeatureFlags       []string      `cli:",hidden" env:"ESCAPEFIELD_FEATURE_FLAGS"        help:"Comma separated feature flags."`
	Version            bool          `cli:""        env:"-"                                help:"Show version."`
	Help               bool          `cli:""        env:"-"                                help:"Show help."`
}

type previewConfig struct {
	Path  string `cli:""        env:"ESCAPEFIELD_PREVIEW_PATH"  help:"The picture where a grid slice is rendered (.png|.svg)."`
	Axis  string `cli:",hidden" env:"ESCAPEFIELD_PREVIEW_AXIS"  help:"The axis orthogonal to the rendered slice (x|y|z)."`
	Index int    `cli:",hidden" env:"ESCAPEFIELD_PREVIEW_INDEX" help:"The index of the rendered slice along the axis."`
}

type s3Config struct {
	Endpoint  string `cli:",hidden" env:"ESCAPEFIELD_S3_ENDPOINT"   help:"S3 compatible endpoint."`
	AccessKey string `cli:",hidden" env:"ESCAPEFIELD_S3_ACCESS_KEY" help:"S3 access key."`
	SecretKey string `cli:",hidden" env:"ESCAPEFIELD_S3_SECRET_KEY" help:"S3 secret key."`
	Bucket    string `cli:",hidden" env:"ESCAPEFIELD_S3_BUCKET"     help:"The bucket where baked fields are uploaded. Uploads are disabled when empty."`
	Secure    bool   `cli:",hidden" env:"ESCAPEFIELD_S3_SECURE"     help:"Use TLS to reach the object store."`
}

func main() {
	conf := config{
		Database:           "escapefield.db",
		Preview:            previewConfig{Axis: "y"},
		S3:                 s3Config{Endpoint: "localhost:9000"},
		Addr:               ":4100",
		AdminAddr:          ":18191",
		PublicEndpoint:     "http://localhost:4100",
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		LogLevel:           logs.InfoLevel.String(),
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Bakes escape vector fields and serves direction queries.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	flags := featureflag.New(conf.FeatureFlags)

	catalog, err := store.OpenCatalog(conf.Database)
	if err != nil {
		logs.Fatal(errors.New("opening catalog failed").Wrap(err))
	}
	defer catalog.Close()

	var objects *store.ObjectStore
	if conf.S3.Bucket != "" {
		objects, err = store.NewObjectStore(store.ObjectStoreConfig(conf.S3))
		if err != nil {
			logs.Fatal(err)
		}
	}

	cache := store.NewLookupCache(catalog)

	if conf.Import != "" {
		if objects == nil {
			logs.Fatal(errors.New("importing a field requires an object store bucket"))
		}
		if err := importField(ctx, catalog, objects, conf.Import); err != nil {
			logs.Fatal(err)
		}
		cache.Invalidate(conf.Import)
	}

	if conf.Scene != "" {
		p := pipeline{
			conf:    conf,
			flags:   flags,
			catalog: catalog,
			objects: objects,
		}

		id, err := p.run(ctx)
		if err != nil {
			logs.Fatal(err)
		}
		cache.Invalidate(id)
	}

	if !conf.Serve {
		return
	}

	var ready atomic.Bool
	readinessCheck := ready.Load

	router := mux.NewRouter()
	efhttp.FieldRoutes(router, efhttp.CatalogProvider{
		Catalog: catalog,
		Cache:   cache,
	}, efhttp.StreamOptions{
		IdleTimeout:        conf.ClientIdleTimeout,
		LogSummaryInterval: conf.LogSummaryInterval,
	})
	router.HandleFunc("/health", efhttp.HandleHealthCheck)
	router.HandleFunc("/ready", efhttp.HandleReadyCheck(readinessCheck))
	router.HandleFunc("/version", efhttp.HandleVersion(version))

	var service http.ServeMux
	service.Handle("/", efhttp.HandleWithCORS(router))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", efhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", efhttp.HandleReadyCheck(readinessCheck))
	admin.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		UserAgent: fmt.Sprintf("escapefield %s", version),
		SendResult: func(ctx context.Context, res smoketest.Results) error {
			logs.WithTag("to_endpoint", res.ToEndpoint).
				WithTag("field_id", res.FieldID).
				WithTag("status", res.Status).
				WithTag("found", res.Found).
				WithTag("latency_ms", res.LatencyMilliSec).
				Info("smoke test done")
			return nil
		},
	}))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("addr", conf.Addr).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("database", conf.Database).
		Info("starting escapefield server")

	ready.Store(true)
	efhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			efhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func validateConfig(conf config) error {
	if conf.Scene == "" && conf.Import == "" && !conf.Serve {
		return errors.New("nothing to do: specify a scene to bake, a field to import or serve")
	}

	if conf.CellSize < 0 {
		return errors.New("cell size override is negative").
			WithTag("cell_size", conf.CellSize)
	}

	if conf.Output != "" {
		if _, err := artifactEncoder(conf.Output); err != nil {
			return err
		}
	}

	if conf.Preview.Path != "" && conf.Scene == "" {
		return errors.New("rendering a preview requires a scene")
	}

	if conf.Database == "" {
		return errors.New("catalog database is empty")
	}

	if conf.Serve {
		if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
			return errors.New("invalid public endpoint").Wrap(err)
		}
	}

	return nil
}

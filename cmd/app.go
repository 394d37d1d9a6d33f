package cmd

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/egoavara/modmgr/internal/bridge"
	"github.com/egoavara/modmgr/internal/config"
	"github.com/egoavara/modmgr/internal/discovery"
	"github.com/egoavara/modmgr/internal/dom"
	"github.com/egoavara/modmgr/internal/events"
	"github.com/egoavara/modmgr/internal/executor"
	"github.com/egoavara/modmgr/internal/hostapi"
	"github.com/egoavara/modmgr/internal/logging"
	"github.com/egoavara/modmgr/internal/metrics"
	"github.com/egoavara/modmgr/internal/modmgr"
	"github.com/egoavara/modmgr/internal/runner"
	"github.com/egoavara/modmgr/internal/sandbox"
	"github.com/egoavara/modmgr/internal/store"
)

// Files under the base directory owned by the plugin runtime.
const (
	storageFile = "storage.json"
	hiddenFile  = "hidden.json"
)

// app is everything one command invocation works with.
type app struct {
	cfg     *config.Config
	log     *log.Logger
	layout  *store.Layout
	metrics *metrics.Metrics
	host    *hostapi.Client
	env     *executor.Env
	bridge  *bridge.Bridge
	types   *runner.Registry
	reg     *modmgr.Registry
}

func newApp() (*app, error) {
	cfg := config.Get()
	logger := logging.Default()
	m := metrics.Default()
	layout := store.NewLayout(config.BaseDir(), config.ThirdPartyFolder)

	host := hostapi.New(cfg.Host.APIURL, hostapi.WithLogger(logger))

	env := &executor.Env{
		Doc:     dom.NewDocument(),
		Storage: layout.File(storageFile),
		Host:    host,
		Events:  events.New(host, cfg.Poll.Interval, logger),
		Loop:    sandbox.NewLoop(0),
		Log:     logger,
		Metrics: m,
	}

	b := bridge.New(bridge.Options{
		Interpreter:     cfg.Script.Interpreter,
		EnvVar:          cfg.Script.EnvVar,
		Timeout:         cfg.Script.Timeout,
		FilterCallbacks: cfg.Script.FilterCallbacks,
		ThirdPartyDir:   layout.ThirdParty,
	},
		bridge.WithTokenSource(host.Token),
		bridge.WithHost(host),
		bridge.WithSelection(host),
		bridge.WithLogger(logger),
		bridge.WithMetrics(m),
	)

	types := runner.NewDefaultRegistry(env, b)

	menv := modmgr.NewEnv(layout, types, logger)
	menv.Metrics = m
	reg, err := modmgr.NewRegistry(menv)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		log:     logger,
		layout:  layout,
		metrics: m,
		host:    host,
		env:     env,
		bridge:  b,
		types:   types,
		reg:     reg,
	}, nil
}

// plugins returns the plugin catalog. builtinDir may be empty.
func (a *app) plugins(builtinDir string) *discovery.Catalog {
	return discovery.New(a.layout.Plugins, builtinDir, a.layout.File(hiddenFile), a.log)
}

// startRuntime runs the event loop and host polling until ctx is done. The
// returned wait blocks until both have returned, so no loop task is still
// running when the caller tears plugins down.
func (a *app) startRuntime(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.env.Loop.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.env.Events.Run(ctx)
	}()
	return wg.Wait
}

// serveMetrics exposes /metrics on addr until ctx is done. An empty addr
// does nothing.
func (a *app) serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.log.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("metrics server failed", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
}

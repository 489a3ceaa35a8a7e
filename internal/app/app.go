package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/jgivc/artifactory/internal/adapter/fsadapter"
	"github.com/jgivc/artifactory/internal/common"
	"github.com/jgivc/artifactory/internal/config"
	httphandler "github.com/jgivc/artifactory/internal/handler/http"
	"github.com/jgivc/artifactory/internal/metrics"
	"github.com/jgivc/artifactory/internal/repository/stats"
	"github.com/jgivc/artifactory/internal/service/archive"
	"github.com/jgivc/artifactory/internal/service/counter"
	sindex "github.com/jgivc/artifactory/internal/service/index"
	"github.com/jgivc/artifactory/internal/service/transfer"
	"github.com/jgivc/artifactory/internal/storage/catalog"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

const (
	initTimeout     = 30 * time.Second
	indexTimeout    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
	redisTimeout    = 5 * time.Second
)

// App is the server context: everything a handler needs is created here once and injected.
type App struct {
	cfg     *config.ServerConfig
	catalog *catalog.Catalog
	indexer *sindex.IndexerService
	metrics *metrics.Metrics
	handler http.Handler
	srv     *http.Server
	rdb     *redis.Client
	log     *slog.Logger
}

// New loads the config file and builds the server on the local filesystem.
func New(cfgPath string) (*App, error) {
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return nil, err
	}

	log, err := config.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, err
	}

	if cfg.TLSEnabled() {
		for _, path := range []string{cfg.TLS.CertFile, cfg.TLS.KeyFile} {
			if _, err := os.Stat(path); err != nil {
				return nil, fmt.Errorf("%w: cannot read tls material: %w", common.ErrConfig, err)
			}
		}
	} else {
		log.Warn("TLS is not configured, serving plain HTTP")
	}

	return NewWithFS(cfg, afero.NewOsFs(), log)
}

// NewWithFS builds the server context on fs and fills the catalog from the artifacts directory.
func NewWithFS(cfg *config.ServerConfig, fs afero.Fs, log *slog.Logger) (*App, error) {
	a := &App{
		cfg: cfg,
		log: log,
	}

	store, err := fsadapter.NewFSAdapterWithFS(fs, cfg.Artifacts.Directory, log)
	if err != nil {
		return nil, fmt.Errorf("cannot create file store: %w", err)
	}
	log.Debug("Artifacts path", slog.String("path", store.Root()))

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	a.catalog = catalog.New(log)
	if _, err := a.catalog.Initialize(ctx, store); err != nil {
		return nil, fmt.Errorf("cannot initialize catalog: %w", err)
	}

	var counters httphandler.CounterService
	if cfg.RedisURL != "" {
		rctx, rcancel := context.WithTimeout(context.Background(), redisTimeout)
		defer rcancel()

		a.rdb, err = stats.Connect(rctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("cannot connect to redis: %w", err)
		}

		counters = counter.NewCounterService(stats.NewStatsRepository(a.rdb, log), log)
	}

	a.indexer = sindex.NewIndexService(store, a.catalog, log)
	a.metrics = metrics.New(a.catalog.Len)
	srv := transfer.NewTransferService(a.catalog, store, archive.NewBuilder(store, log), log)

	mux := http.NewServeMux()
	a.handle(mux, "GET /{$}", "root", httphandler.NewRootHandler())
	a.handle(mux, "GET /list", "list", httphandler.NewListHandler(srv, log))
	a.handle(mux, "GET /file", "file", httphandler.NewFileHandler(srv, counters, a.metrics, log))
	a.handle(mux, "GET /files", "files", httphandler.NewFilesHandler(srv, counters, a.metrics, log))
	a.handle(mux, "PUT /file", "upload", httphandler.NewUploadHandler(srv, cfg.UploadMaxMemory, a.metrics, log))
	a.handle(mux, "GET /stat", "stat", httphandler.NewStatHandler(counters, log))
	mux.Handle("GET /metrics", a.metrics.Handler())
	a.handler = mux

	return a, nil
}

func (a *App) handle(mux *http.ServeMux, pattern, route string, h http.Handler) {
	mux.Handle(pattern, a.metrics.Middleware(route, h))
}

func (a *App) Handler() http.Handler {
	return a.handler
}

// Start binds the listening socket and serves in the background. Bind errors are returned.
func (a *App) Start() error {
	a.srv = &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      a.handler,
		ReadTimeout:  a.cfg.Timeouts.Read,
		WriteTimeout: a.cfg.Timeouts.Write,
		IdleTimeout:  a.cfg.Timeouts.Idle,
		ErrorLog:     slog.NewLogLogger(a.log.Handler(), slog.LevelError),
	}

	ln, err := net.Listen("tcp", a.srv.Addr)
	if err != nil {
		return fmt.Errorf("cannot listen on %s: %w", a.srv.Addr, err)
	}

	go func() {
		a.log.Info("Start listen", slog.String("addr", a.srv.Addr), slog.Bool("tls", a.cfg.TLSEnabled()), slog.Int("files", a.catalog.Len()))

		var err error
		if a.cfg.TLSEnabled() {
			err = a.srv.ServeTLS(ln, a.cfg.TLS.CertFile, a.cfg.TLS.KeyFile)
		} else {
			err = a.srv.Serve(ln)
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Could not serve", slog.String("listen_addr", a.srv.Addr), slog.Any("error", err))
			os.Exit(2)
		}
	}()

	return nil
}

// Index appends files that appeared in the artifacts directory since the last scan.
func (a *App) Index() {
	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()

	added, err := a.indexer.Index(ctx)
	if err != nil {
		a.log.Error("Cannot index artifacts directory", slog.Any("error", err))

		return
	}

	a.log.Info("Index done", slog.Int("added", added), slog.Int("total", a.catalog.Len()))
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.srv != nil {
		if err := a.srv.Shutdown(ctx); err != nil {
			a.log.Error("Cannot shutdown server", slog.Any("error", err))
		}
	}

	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("Cannot close redis client", slog.Any("error", err))
		}
	}
}

// Dump logs the current catalog content.
func (a *App) Dump() {
	for _, rec := range a.catalog.List() {
		a.log.Info("Catalog entry", slog.String("id", rec.ID.String()), slog.String("name", rec.Name), slog.String("path", rec.Path), slog.Int64("size", rec.Size))
	}
}

// Command registry runs the federation coordination service: the
// endpoint directory, the fan-out aggregator, the slug resolver, and
// the cache coherence token.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/bazar/internal/aggregate"
	"github.com/dreamware/bazar/internal/cachetoken"
	"github.com/dreamware/bazar/internal/config"
	"github.com/dreamware/bazar/internal/logging"
	"github.com/dreamware/bazar/internal/registry"
	"github.com/dreamware/bazar/internal/rowstore"
	"github.com/dreamware/bazar/internal/slugdir"
)

func main() {
	cfg, err := config.LoadRegistry(os.Getenv("REGISTRY_CONFIG"))
	if err != nil {
		panic(err)
	}
	log, err := logging.New("registry")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal("data dir", zap.Error(err))
	}

	dir, err := openDirectory(cfg.DataDir, log)
	if err != nil {
		log.Fatal("endpoint directory", zap.Error(err))
	}
	slugs, err := openSlugDirectory(cfg.DataDir, log)
	if err != nil {
		log.Fatal("slug directory", zap.Error(err))
	}

	var token cachetoken.State
	if cfg.RedisURL != "" {
		redisState, err := cachetoken.NewRedisState(cfg.RedisURL)
		if err != nil {
			log.Fatal("redis cache token", zap.Error(err))
		}
		token = redisState
		log.Info("cache token backed by redis")
	} else {
		token = cachetoken.NewProcessState()
	}

	agg := aggregate.New(cfg.FanoutTimeout, log)

	var monitor *registry.HealthMonitor
	if cfg.HealthInterval > 0 {
		monitor = registry.NewHealthMonitor(cfg.HealthInterval, log)
		go monitor.Start(context.Background(), dir.List)
	}

	srv := newServer(cfg, log, dir, agg, slugs, token, monitor)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newCORS(cfg).Handler(srv.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("registry listening", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	srv.shutdown()
	log.Info("registry stopped")
}

// newCORS builds the browser-facing CORS policy. Only origins on the
// configured allow-list receive CORS headers; everything else gets none,
// leaving enforcement to the caller's browser.
func newCORS(cfg config.Registry) *cors.Cors {
	// An empty allow-list admits nobody; the library's default would be
	// to admit every origin.
	return cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return slices.Contains(cfg.AllowedOrigins, origin)
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
}

func openDirectory(dataDir string, log *zap.Logger) (*registry.Directory, error) {
	tape, err := rowstore.NewFileTape(filepath.Join(dataDir, "endpoints.jsonl"))
	if err != nil {
		return nil, err
	}
	store, err := rowstore.Open(rowstore.Options{
		Name:   "endpoints",
		Schema: registry.EndpointSchema,
		Tape:   tape,
	})
	if err != nil {
		return nil, err
	}
	return registry.NewDirectory(store, log), nil
}

func openSlugDirectory(dataDir string, log *zap.Logger) (*slugdir.Directory, error) {
	slugTape, err := rowstore.NewFileTape(filepath.Join(dataDir, "slugs.jsonl"))
	if err != nil {
		return nil, err
	}
	slugStore, err := rowstore.Open(rowstore.Options{
		Name:   "slugs",
		Schema: slugdir.SlugSchema,
		Tape:   slugTape,
	})
	if err != nil {
		return nil, err
	}

	visitTape, err := rowstore.NewFileTape(filepath.Join(dataDir, "visits.jsonl"))
	if err != nil {
		return nil, err
	}
	visitStore, err := rowstore.Open(rowstore.Options{
		Name:     "visits",
		Schema:   slugdir.VisitSchema,
		IDPrefix: "vis",
		Tape:     visitTape,
	})
	if err != nil {
		return nil, err
	}
	return slugdir.New(slugStore, visitStore, log), nil
}

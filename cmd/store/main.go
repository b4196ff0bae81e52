// Command store runs one tenant's row-store service: the item catalog
// and the order book, registered with the federation registry on boot.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/bazar/internal/cachetoken"
	"github.com/dreamware/bazar/internal/config"
	"github.com/dreamware/bazar/internal/federation"
	"github.com/dreamware/bazar/internal/logging"
	"github.com/dreamware/bazar/internal/rowstore"
)

func main() {
	cfg, err := config.LoadStore(os.Getenv("STORE_CONFIG"))
	if err != nil {
		panic(err)
	}
	log, err := logging.New("store")
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log = log.With(zap.String("tenant", cfg.TenantID))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal("data dir", zap.Error(err))
	}

	items, err := openStore(cfg, "items", ItemSchema, "itm", false)
	if err != nil {
		log.Fatal("items store", zap.Error(err))
	}
	orders, err := openStore(cfg, "orders", OrderSchema, "ORD-", true)
	if err != nil {
		log.Fatal("orders store", zap.Error(err))
	}

	invalidator := cachetoken.NewInvalidator(cfg.RegistryURL, log)
	srv := newServer(cfg, log, items, orders, invalidator)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("store listening", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	register(cfg, log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	log.Info("store stopped")
}

func openStore(cfg config.Store, name string, schema rowstore.Schema, prefix string, sequential bool) (*rowstore.Store, error) {
	tape, err := rowstore.NewFileTape(filepath.Join(cfg.DataDir, name+".jsonl"))
	if err != nil {
		return nil, err
	}
	return rowstore.Open(rowstore.Options{
		Name:          name,
		Schema:        schema,
		IDPrefix:      prefix,
		SequentialIDs: sequential,
		LockWait:      cfg.LockWait,
		Tape:          tape,
	})
}

// register announces this store to the registry, retrying briefly so
// boot order between the two services does not matter.
func register(cfg config.Store, log *zap.Logger) {
	body := federation.RegisterRequest{Endpoint: federation.EndpointDescriptor{
		TenantID:    cfg.TenantID,
		DisplayName: cfg.DisplayName,
		StoreRef:    cfg.TenantID,
		EndpointURL: cfg.PublicURL,
		ImageURL:    cfg.ImageURL,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var lastErr error
	for i := 0; i < 10; i++ {
		lastErr = federation.PostJSON(ctx, cfg.RegistryURL+"/register", body, nil)
		if lastErr == nil {
			log.Info("registered with registry", zap.String("registry", cfg.RegistryURL))
			return
		}
		log.Warn("register retry", zap.Int("attempt", i+1), zap.Error(lastErr))
		time.Sleep(400 * time.Millisecond)
	}
	log.Fatal("failed to register with registry", zap.Error(lastErr))
}

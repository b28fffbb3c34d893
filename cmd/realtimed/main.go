// realtimed runs the realtime notification server: it mints single-use
// socket tokens for authenticated users and pushes balance, approval, and
// task events to every session they hold.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/lightningsats/go-realtime/internal/auth"
	"github.com/lightningsats/go-realtime/internal/registry"
	"github.com/lightningsats/go-realtime/internal/server"
	bunstore "github.com/lightningsats/go-realtime/internal/storage/bun"
	"github.com/lightningsats/go-realtime/pkg/config"
	"github.com/lightningsats/go-realtime/pkg/interfaces/logger"
	"github.com/lightningsats/go-realtime/pkg/logging"
	"github.com/lightningsats/go-realtime/pkg/notifier"
	"github.com/lightningsats/go-realtime/pkg/realtime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(loadOverrides())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lgr := logging.New(os.Stderr)

	db, err := bunstore.Open(cfg.Cache.DurableDSN)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	tokens, err := auth.NewBunStore(ctx, db)
	if err != nil {
		log.Fatalf("token store: %v", err)
	}

	issuer, err := auth.NewIssuer(auth.IssuerOptions{
		Store:  tokens,
		TTL:    cfg.Server.TokenTTL,
		Logger: lgr.Component("auth"),
	})
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}
	go issuer.RunSweeper(ctx, cfg.Server.TokenSweep)

	sessions := registry.New(lgr.Component("registry"))
	events, err := notifier.New(sessions, lgr.Component("notifier"))
	if err != nil {
		log.Fatalf("notifier: %v", err)
	}
	go servePublish(cfg.Server.PublishAddr, events, lgr.Component("publish"))

	srv, err := server.New(server.Options{
		Addr:          cfg.Server.Addr,
		Registry:      sessions,
		Issuer:        issuer,
		Identity:      headerIdentity,
		HandshakeWait: cfg.Server.HandshakeWait,
		Logger:        lgr.Component("server"),
	})
	if err != nil {
		log.Fatalf("server: %v", err)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if err != nil {
			log.Fatalf("serve: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// servePublish exposes the notifier to the host app's backend on a private
// address: POST /publish with a user id and a message body fans the event
// out to that user's sessions.
func servePublish(addr string, events *notifier.Notifier, lgr logger.Logger) {
	router := mux.NewRouter()
	router.HandleFunc("/publish", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			http.Error(w, "userId is required", http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		msg, err := realtime.Decode(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		delivered := events.Publish(userID, msg)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"delivered": delivered})
	}).Methods(http.MethodPost)

	lgr.Info("publish endpoint listening", logger.F("addr", addr))
	if err := http.ListenAndServe(addr, router); err != nil {
		lgr.Error("publish endpoint stopped", logger.F("error", err))
	}
}

// loadOverrides maps a handful of environment variables onto the config
// tree; anything unset falls back to defaults.
func loadOverrides() map[string]any {
	overrides := map[string]any{}
	serverSection := map[string]any{}
	cacheSection := map[string]any{}

	if addr := os.Getenv("REALTIME_ADDR"); addr != "" {
		serverSection["addr"] = addr
	}
	if dsn := os.Getenv("REALTIME_DB_DSN"); dsn != "" {
		cacheSection["durable_dsn"] = dsn
	}
	if len(serverSection) > 0 {
		overrides["server"] = serverSection
	}
	if len(cacheSection) > 0 {
		overrides["cache"] = cacheSection
	}
	return overrides
}

// headerIdentity trusts an upstream gateway to have authenticated the user
// and injected X-User-ID. Hosts embedding the server wire their own
// resolver instead.
func headerIdentity(r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	return userID, userID != ""
}

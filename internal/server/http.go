package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/falling-trivia/internal/config"
	"github.com/gokatarajesh/falling-trivia/internal/logging"
)

// WSUpgrader handles WebSocket upgrades. Origins are checked against
// AllowedOrigins; an empty list accepts any origin.
var WSUpgrader = websocket.Upgrader{
	CheckOrigin:     checkOrigin,
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// AllowedOrigins is set once at startup from configuration.
var AllowedOrigins []string

func checkOrigin(r *http.Request) bool {
	if len(AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Registrar mounts a component's routes.
type Registrar interface {
	Register(mux *http.ServeMux)
}

// Deps are the optional backends and handlers mounted by the server.
type Deps struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Gatherer  prometheus.Gatherer
	WebSocket http.HandlerFunc
	Routes    []Registrar
}

// NewHTTPServer wires base routes (health, metrics, ping, WebSocket) plus
// every registrar's routes.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, deps Deps) *http.Server {
	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: NewMux(logger, deps),
	}
}

// NewMux builds the request router.
func NewMux(logger zerolog.Logger, deps Deps) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mux.HandleFunc("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.IntoContext(r.Context(), logger)
		if err := pingDependencies(ctx, deps.Pool, deps.Redis); err != nil {
			log := logging.FromContext(ctx)
			log.Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	if deps.WebSocket != nil {
		mux.HandleFunc("/ws", deps.WebSocket)
	} else {
		mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "WebSocket handler not configured", http.StatusNotImplemented)
		})
	}

	for _, r := range deps.Routes {
		r.Register(mux)
	}
	return mux
}

// pingDependencies checks the configured backends. Missing backends are
// skipped: the server runs in memory without them.
func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redis *redis.Client) error {
	if pool != nil {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
	}
	if redis != nil {
		if err := redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

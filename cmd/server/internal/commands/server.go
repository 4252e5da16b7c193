package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"filippo.io/csrf"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/plantsim/console/internal/auth"
	httpmiddleware "github.com/plantsim/console/internal/http"
	"github.com/plantsim/console/internal/logger"
	"github.com/plantsim/console/internal/server"
	"github.com/plantsim/console/internal/session"
	"github.com/plantsim/console/internal/simulator"
)

type ServeCmd struct {
	// Server configuration
	Listen     string `help:"HTTP server listen address" default:"localhost:8080" env:"PLANTSIM_LISTEN"`
	Production bool   `help:"production mode - strict CSP, HSTS and secure cookies" default:"false" env:"PLANTSIM_PRODUCTION"`
	Cert       string `help:"path to TLS cert file" default:"" env:"PLANTSIM_TLS_CERT"`
	Key        string `help:"path to TLS key file" default:"" env:"PLANTSIM_TLS_KEY"`

	// Auth configuration
	TokenSecret     string        `help:"secret for signing auth token cookies" env:"PLANTSIM_TOKEN_SECRET"`
	TokenTTL        time.Duration `help:"auth token lifetime" default:"720h" env:"PLANTSIM_TOKEN_TTL"`
	CredentialsFile string        `help:"path to the operator credentials YAML file" default:"operators.yaml" env:"PLANTSIM_CREDENTIALS"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:8080" env:"PLANTSIM_CORS_ORIGINS"`

	// Snapshot store configuration
	StoreType  string          `help:"snapshot store type (memory, file, or redis)" default:"file" env:"PLANTSIM_STORE_TYPE" enum:"memory,file,redis"`
	StateDir   string          `help:"state directory for the file snapshot store" default:".plantsim" env:"PLANTSIM_STATE_DIR"`
	RedisStore RedisStoreFlags `embed:"" prefix:"redis-"`

	// Simulator backend
	SimulatorURL string `help:"simulator backend base URL for the status stream (empty disables the watcher)" default:"" env:"PLANTSIM_SIMULATOR_URL"`
}

type RedisStoreFlags struct {
	Addr     string `help:"Redis address for the snapshot store" default:"localhost:6379" env:"PLANTSIM_REDIS_ADDR"`
	Password string `help:"Redis password" default:"" env:"PLANTSIM_REDIS_PASSWORD"`
	DB       int    `help:"Redis database" default:"0" env:"PLANTSIM_REDIS_DB"`
}

func (c *ServeCmd) Validate() error {
	if c.TokenSecret == "" {
		return errors.New("token secret is required (--token-secret or PLANTSIM_TOKEN_SECRET)")
	}
	if len(c.TokenSecret) < 32 {
		return errors.New("token secret must be at least 32 bytes (256 bits) for HMAC-SHA256")
	}
	return nil
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("production", c.Production).Msg("Starting console server")

	snapshots, err := c.createSnapshotStore(ctx)
	if err != nil {
		return err
	}

	mirror := session.NewCookieMirror(c.Production)
	store := session.NewStore(session.Config{
		Snapshots: snapshots,
		Mirror:    mirror,
		Logger:    log,
	})

	// Nothing serves until hydration has reconciled snapshot and mirror.
	store.Hydrate(ctx)
	if id, ok := store.SessionID(); ok {
		log.Info().Str("session_id", id).Msg("restored session from snapshot")
	}

	unsubscribe := store.Subscribe(func(state session.State) {
		log.Debug().
			Str("session_id", state.CurrentSessionID).
			Bool("socket_connected", state.SocketConnected).
			Msg("session state changed")
	})
	defer unsubscribe()

	creds, err := auth.LoadCredentials(c.CredentialsFile)
	if err != nil {
		return fmt.Errorf("failed to load operator credentials: %w", err)
	}

	secret := []byte(c.TokenSecret)
	authHandler := auth.NewHandler(creds, secret, c.Production, c.TokenTTL, log)

	strategies := auth.DefaultStrategies(secret)
	authenticated := func(r *http.Request) bool {
		return auth.Authenticate(r, strategies) != nil
	}

	mux := http.NewServeMux()
	authHandler.Register(mux)
	server.NewSessionAPI(store, log).Register(mux, httpmiddleware.RequireToken(authenticated))

	// API routes get CORS, everything else gets CSRF protection.
	protection := csrf.New()
	apiHandler := withCORS(c.CORSOrigins, mux)
	pageHandler := protection.Handler(mux)
	split := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			apiHandler.ServeHTTP(w, r)
		} else {
			pageHandler.ServeHTTP(w, r)
		}
	})

	// Innermost first: the route guard, cookie mirror sync, client IP
	// capture, security headers, request logging. The mirror wraps the guard
	// so even redirect responses reconcile a stale session cookie.
	var handler http.Handler = httpmiddleware.Guard(authenticated)(split)
	handler = mirror.Middleware()(handler)
	handler = httpmiddleware.ClientIPMiddleware()(handler)
	handler = httpmiddleware.SecurityHeaders(c.Production)(handler)
	handler = httpmiddleware.RequestLogger(log)(handler)

	if c.SimulatorURL != "" {
		watcher := simulator.NewWatcher(c.SimulatorURL, store, log)
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("simulator watcher stopped")
			}
		}()
	} else {
		log.Warn().Msg("No simulator URL configured, status stream disabled")
	}

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Msg("Listening")
		if c.Cert != "" && c.Key != "" {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (c *ServeCmd) createSnapshotStore(ctx context.Context) (session.SnapshotStore, error) {
	switch c.StoreType {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     c.RedisStore.Addr,
			Password: c.RedisStore.Password,
			DB:       c.RedisStore.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return session.NewRedisSnapshotStore(client), nil

	case "memory":
		return session.NewMemorySnapshotStore(), nil

	default:
		store, err := session.NewFileSnapshotStore(c.StateDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// isAPIRoute returns true for paths served as JSON API rather than pages.
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// withCORS adds CORS support for browser API requests.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true, // Required for cookie-based authentication
	})
	return middleware.Handler(h)
}

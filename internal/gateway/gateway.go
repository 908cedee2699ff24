// ABOUTME: Gateway orchestrator that wires the friend graph service behind the HTTP server
// ABOUTME: Manages the store, token issuer, event fan-out, metrics and server lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/2389/friendgraph/internal/auth"
	"github.com/2389/friendgraph/internal/config"
	"github.com/2389/friendgraph/internal/events"
	"github.com/2389/friendgraph/internal/metrics"
	"github.com/2389/friendgraph/internal/ratelimit"
	"github.com/2389/friendgraph/internal/revocation"
	"github.com/2389/friendgraph/internal/social"
	"github.com/2389/friendgraph/internal/store"
)

// redeemedTokenCapacity bounds the single-use refresh token cache.
const redeemedTokenCapacity = 100000

// throttleIdleTTL is how long an idle client's auth bucket is kept.
const throttleIdleTTL = 10 * time.Minute

// Gateway is the main friendgraph server that owns every component.
type Gateway struct {
	config      *config.Config
	store       store.Store
	social      *social.Service
	issuer      *auth.JWTIssuer
	redeemed    *revocation.Cache
	broadcaster *events.Broadcaster
	natsConn    *nats.Conn
	metrics     *metrics.Metrics
	throttle    *ratelimit.ClientThrottle
	httpServer  *http.Server
	logger      *slog.Logger
}

// initStore opens the configured SQLite database.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStoreWithDriver(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return s, nil
}

// initPublisher builds the event publisher chain. The broadcaster always
// receives events; NATS is added when a URL is configured.
func initPublisher(cfg *config.Config, broadcaster *events.Broadcaster, logger *slog.Logger) (events.Publisher, *nats.Conn, error) {
	if cfg.NATS.URL == "" {
		return broadcaster, nil, nil
	}

	conn, err := events.DialNATS(cfg.NATS.URL, logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("publishing events to NATS", "url", cfg.NATS.URL, "subject_prefix", cfg.NATS.SubjectPrefix)

	return events.Multi{broadcaster, events.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix, logger)}, conn, nil
}

// New creates a new Gateway instance with the provided configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqlStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	redeemed := revocation.New(redeemedTokenCapacity)
	issuer, err := auth.NewJWTIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL, redeemed)
	if err != nil {
		redeemed.Close()
		_ = sqlStore.Close()
		return nil, fmt.Errorf("creating token issuer: %w", err)
	}

	broadcaster := events.NewBroadcaster(logger)
	publisher, natsConn, err := initPublisher(cfg, broadcaster, logger)
	if err != nil {
		broadcaster.Close()
		redeemed.Close()
		_ = sqlStore.Close()
		return nil, err
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	svc := social.New(sqlStore, social.Options{
		Window: ratelimit.SlidingWindow{
			Limit: cfg.Limits.SendPerWindow,
			Span:  cfg.Limits.SendWindow,
		},
		Publisher: publisher,
		Metrics:   m,
		Logger:    logger,
	})

	gw := &Gateway{
		config:      cfg,
		store:       sqlStore,
		social:      svc,
		issuer:      issuer,
		redeemed:    redeemed,
		broadcaster: broadcaster,
		natsConn:    natsConn,
		metrics:     m,
		throttle:    ratelimit.NewClientThrottle(cfg.Limits.AuthRPS, cfg.Limits.AuthBurst, throttleIdleTTL, logger),
		logger:      logger.With("component", "gateway"),
	}

	gw.httpServer = &http.Server{
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// setupListener opens the TCP listener for the HTTP API.
func (g *Gateway) setupListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener()
	if err != nil {
		_ = g.gracefulShutdown()
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The caller's context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeOptionalComponents closes components that may be nil.
func (g *Gateway) closeOptionalComponents() {
	if g.throttle != nil {
		g.throttle.Close()
	}
	if g.redeemed != nil {
		g.redeemed.Close()
	}
}

// Shutdown stops the HTTP server, drains NATS and closes the store.
// Event streams end when the broadcaster closes their channels.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error

	// Broadcaster first so open SSE handlers return and HTTP shutdown can finish.
	if g.broadcaster != nil {
		g.broadcaster.Close()
	}
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.natsConn != nil {
		errs = appendCloseError(errs, "NATS drain", g.natsConn.Drain())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	g.closeOptionalComponents()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the database answers a ping.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := g.store.Ping(r.Context()); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

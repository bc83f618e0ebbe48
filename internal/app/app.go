package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foxzi/zapdesk/internal/backend"
	"github.com/foxzi/zapdesk/internal/campaign"
	"github.com/foxzi/zapdesk/internal/config"
	"github.com/foxzi/zapdesk/internal/metrics"
	"github.com/foxzi/zapdesk/internal/phone"
	"github.com/foxzi/zapdesk/internal/server"
	"github.com/foxzi/zapdesk/internal/session"
	"github.com/foxzi/zapdesk/internal/socket"
	"github.com/foxzi/zapdesk/internal/store"
	"github.com/foxzi/zapdesk/internal/tracing"
)

// App owns the long-lived resources shared by every command
type App struct {
	config   *config.Config
	version  string
	logger   *slog.Logger
	sessions *session.Store
	db       *store.DB
	drafts   *store.DraftRepository
	audit    *store.AuditRepository
	client   *backend.Client
	metrics  *metrics.Metrics

	shutdownTracing tracing.Shutdown
}

// Options tune New
type Options struct {
	Version string

	// LogOutput receives log lines. Defaults to stderr.
	LogOutput io.Writer
}

// New opens the session and local databases and builds the backend client
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := NewLogger(cfg.Logging, out)
	phone.SetDefaultCountryCode(cfg.Phone.CountryCode)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metrics.SetGlobal(m)
	}

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, tracing.Options{Version: opts.Version}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to setup tracing: %w", err)
	}

	sessions, err := session.Open(cfg.Session.Path)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		sessions.Close()
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		sessions.Close()
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &App{
		config:          cfg,
		version:         opts.Version,
		logger:          logger,
		sessions:        sessions,
		db:              db,
		drafts:          store.NewDraftRepository(db.DB),
		audit:           store.NewAuditRepository(db.DB),
		client:          backend.NewClient(cfg.Backend.BaseURL, sessions, cfg.Backend.Timeout),
		metrics:         m,
		shutdownTracing: shutdownTracing,
	}, nil
}

func (a *App) Config() *config.Config { return a.config }
func (a *App) Logger() *slog.Logger { return a.logger }
func (a *App) Sessions() *session.Store { return a.sessions }
func (a *App) Client() *backend.Client { return a.client }
func (a *App) Drafts() *store.DraftRepository { return a.drafts }
func (a *App) Audit() *store.AuditRepository { return a.audit }
func (a *App) Migrate() error { return a.db.Migrate() }
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// RequireSession returns the stored session or an error telling the user
// to log in
func (a *App) RequireSession() (*session.Session, error) {
	sess, err := a.sessions.Load()
	if errors.Is(err, session.ErrNoSession) {
		return nil, errors.New("not logged in, run zapdesk login")
	}
	if err != nil {
		return nil, err
	}
	if sess.Expired(time.Now()) {
		return nil, errors.New("session expired, run zapdesk login")
	}
	return sess, nil
}

// NewSocket builds the realtime client for the current session. The
// configured tenant wins over the one stored with the session.
func (a *App) NewSocket() *socket.Client {
	return socket.NewClient(socket.Config{
		URL:              a.config.Socket.URL,
		TenantID:         a.tenant(),
		Token:            a.sessions.Token,
		MinBackoff:       a.config.Socket.ReconnectMinDelay,
		MaxBackoff:       a.config.Socket.ReconnectMaxDelay,
		HandshakeTimeout: a.config.Socket.HandshakeTimeout,
	}, a.logger)
}

func (a *App) tenant() string {
	if a.config.Socket.TenantID != "" {
		return a.config.Socket.TenantID
	}
	return a.sessions.TenantID()
}

// NewReconciler builds the campaign reconciler with audit recording
func (a *App) NewReconciler() *campaign.Reconciler {
	return campaign.NewReconciler(a.client, a.logger,
		campaign.WithNotificationTTL(a.config.Notifications.TTL),
		campaign.WithAuditor(a.audit),
	)
}

// Live is a connected reconciler and its event source
type Live struct {
	Reconciler *campaign.Reconciler
	Socket     *socket.Client
}

// StartLive loads the campaign list, binds the reconciler to a new socket
// and connects it. Callers run Reconciler.Run and Close the socket.
func (a *App) StartLive(ctx context.Context) (*Live, error) {
	if _, err := a.RequireSession(); err != nil {
		return nil, err
	}
	// Without a tenant room the socket never receives campaign events
	if a.tenant() == "" {
		return nil, errors.New("no tenant for realtime updates, set socket.tenant_id or run zapdesk login again")
	}

	rec := a.NewReconciler()
	if err := rec.Refresh(ctx); err != nil {
		// The socket connect triggers another refetch
		a.logger.Warn("initial campaign load failed", "error", err)
	}

	sock := a.NewSocket()
	rec.Bind(sock)
	if err := sock.Connect(ctx); err != nil {
		rec.Unbind()
		return nil, fmt.Errorf("failed to connect socket: %w", err)
	}
	return &Live{Reconciler: rec, Socket: sock}, nil
}

// Serve runs the dashboard server, the socket and the reconciler until a
// signal arrives or one of them fails
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	live, err := a.StartLive(ctx)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(&a.config.Server, a.config.Metrics, server.Deps{
		Campaigns: live.Reconciler,
		Inventory: a.client,
		Socket:    live.Socket,
		Audit:     a.audit,
		Metrics:   a.metrics,
	}, a.logger, a.version)
	if err != nil {
		live.Reconciler.Unbind()
		live.Socket.Close()
		return err
	}

	a.logger.Info("starting zapdesk",
		"version", a.version,
		"backend", a.config.Backend.BaseURL,
		"socket", a.config.Socket.URL,
		"listen_addr", a.config.Server.ListenAddr,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return live.Reconciler.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("dashboard server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("dashboard server shutdown error", "error", err)
		}
		live.Reconciler.Unbind()
		return live.Socket.Close()
	})

	err = g.Wait()
	a.logger.Info("shutdown complete")
	return err
}

// Close releases the databases and flushes traces
func (a *App) Close() error {
	var errs []error
	if err := a.shutdownTracing(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	if err := a.sessions.Close(); err != nil {
		errs = append(errs, fmt.Errorf("session store: %w", err))
	}
	return errors.Join(errs...)
}

// NewLogger creates a logger based on configuration
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

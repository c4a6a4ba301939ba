package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/maxiofs/headerauth/internal/config"
	"github.com/maxiofs/headerauth/internal/headerauth"
	"github.com/maxiofs/headerauth/internal/idp"
	"github.com/maxiofs/headerauth/internal/login"
	"github.com/maxiofs/headerauth/internal/metrics"
	"github.com/maxiofs/headerauth/internal/middleware"
	"github.com/maxiofs/headerauth/internal/repository"
	"github.com/maxiofs/headerauth/internal/usersync"
	"github.com/sirupsen/logrus"
)

// Server represents the headerauth server
type Server struct {
	config         *config.Config
	httpServer     *http.Server
	snapshots      *headerauth.SnapshotHolder
	authHandler    *headerauth.Handler
	repository     repository.Repository
	providers      *idp.Manager
	syncHandlers   *usersync.Manager
	loginModule    *login.Module
	chain          *login.Chain
	metricsManager metrics.Manager
	startTime      time.Time
}

// New creates a new headerauth server
func New(cfg *config.Config) (*Server, error) {
	snap, err := cfg.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("invalid header auth configuration: %w", err)
	}
	snapshots := headerauth.NewSnapshotHolder(snap)

	// Initialize identity repository
	repo, err := repository.Open(repository.Options{
		Backend: cfg.Storage.Backend,
		DataDir: cfg.DataDir,
		Logger:  logrus.StandardLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open identity repository: %w", err)
	}

	metricsManager := metrics.NewManager(cfg.Metrics)

	providers := idp.NewManager()
	provider, err := providers.CreateProvider(idp.ProviderConfig{Name: cfg.Sync.IDPName, Type: idp.TypeHeader})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to create identity provider: %w", err)
	}

	syncHandlers := usersync.NewManager()

	loginModule := login.NewModule(login.Options{
		ProviderName:    cfg.Sync.IDPName,
		SyncHandlerName: cfg.Sync.HandlerName,
		Providers:       providers,
		Handlers:        syncHandlers,
		Repository:      repo,
		Recorder:        metricsManager,
		Logger:          logrus.StandardLogger(),
	})

	chain := login.NewChain(logrus.StandardLogger(),
		login.ModuleStep{Module: loginModule},
		login.NewPreAuthStep(repo, provider, logrus.StandardLogger()),
	)

	httpServer := &http.Server{
		Addr:         cfg.Listen,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	server := &Server{
		config:         cfg,
		httpServer:     httpServer,
		snapshots:      snapshots,
		authHandler:    headerauth.NewHandler(snapshots),
		repository:     repo,
		providers:      providers,
		syncHandlers:   syncHandlers,
		loginModule:    loginModule,
		chain:          chain,
		metricsManager: metricsManager,
		startTime:      time.Now(),
	}

	server.setupRoutes()
	return server, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"address":  s.config.Listen,
		"data_dir": s.config.DataDir,
		"backend":  s.config.Storage.Backend,
	}).Info("Starting headerauth server")

	if s.config.Metrics.Enable {
		s.metricsManager.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Error("HTTP server error")
			errCh <- err
		}
	}()

	// Wait for context cancellation
	select {
	case <-ctx.Done():
	case err := <-errCh:
		s.shutdown()
		return err
	}

	// Graceful shutdown
	return s.shutdown()
}

// Reload applies a changed configuration. Only the header auth snapshot and
// the log level are hot reloadable; other changes need a restart.
func (s *Server) Reload(cfg *config.Config, err error) {
	if err != nil {
		s.metricsManager.RecordConfigReload(false)
		return
	}

	snap, err := cfg.Snapshot()
	if err != nil {
		logrus.WithError(err).Error("Ignoring invalid header auth configuration")
		s.metricsManager.RecordConfigReload(false)
		return
	}
	s.snapshots.Store(snap)

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	if cfg.Listen != s.config.Listen || cfg.Storage.Backend != s.config.Storage.Backend || cfg.DataDir != s.config.DataDir {
		logrus.Warn("Listen address and storage changes take effect after restart")
	}

	s.metricsManager.RecordConfigReload(true)
	logrus.WithField("remote_user_header", snap.RemoteUserHeader()).Info("Header auth configuration reloaded")
}

func (s *Server) shutdown() error {
	logrus.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Failed to shutdown HTTP server")
	}

	if s.metricsManager != nil {
		s.metricsManager.Stop()
	}

	if err := s.repository.Close(); err != nil {
		logrus.WithError(err).Error("Failed to close identity repository")
		return err
	}

	logrus.Info("Server shutdown completed")
	return nil
}

func (s *Server) setupRoutes() {
	router := mux.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logging())
	if s.config.Metrics.Enable {
		router.Use(s.metricsManager.Middleware())
	}

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.config.Metrics.Enable {
		router.Handle(s.config.Metrics.Path, s.metricsManager.GetMetricsHandler()).Methods(http.MethodGet)
	}

	authed := router.NewRoute().Subrouter()
	authed.Use(middleware.HeaderAuth(s.authHandler, s.chain, s.metricsManager))
	authed.HandleFunc("/api/v1/whoami", s.handleWhoAmI).Methods(http.MethodGet)
	authed.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	s.httpServer.Handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(router)
}

package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	backupsapi "mdip/api/backups"
	"mdip/config"
	"mdip/core/auth"
	"mdip/core/store"
	"mdip/core/utils"

	"github.com/go-chi/chi/v5"
)

// BackgroundWorker is started with the server and stopped on shutdown.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	DB      *sql.DB
	Auth    *auth.Service
	Tokens  *auth.TokenIssuer
	Records store.RecordsStore
	Audits  store.AuditStore
	Backups backupsapi.ServicePort
	Workers []BackgroundWorker
}

type Server struct {
	cfg          *config.AppConfig
	logger       *utils.Logger
	db           *sql.DB
	auth         *auth.Service
	tokens       *auth.TokenIssuer
	records      store.RecordsStore
	audits       store.AuditStore
	backups      backupsapi.ServicePort
	workers      []BackgroundWorker
	loginLimiter *requestLimiter
	router       chi.Router
	httpServer   *http.Server
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		db:           deps.DB,
		auth:         deps.Auth,
		tokens:       deps.Tokens,
		records:      deps.Records,
		audits:       deps.Audits,
		backups:      deps.Backups,
		workers:      deps.Workers,
		loginLimiter: newLimiter(cfg.Security.LoginRatePerMin, time.Minute),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests and stops the workers.
func (s *Server) Run(ctx context.Context) error {
	for _, w := range s.workers {
		if err := w.StartWithContext(ctx); err != nil {
			return err
		}
	}
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s (tls=%v)", s.cfg.ListenAddr, s.cfg.TLSEnabled)
		var err error
		if s.cfg.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("http shutdown: %v", err)
	}
	for _, w := range s.workers {
		if err := w.StopWithContext(shutdownCtx); err != nil {
			s.logger.Errorf("worker stop: %v", err)
		}
	}
	return serveErr
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Errorf("healthz: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

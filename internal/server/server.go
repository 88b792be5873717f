package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/elskow/userauth/internal/api"
	"github.com/elskow/userauth/internal/auth"
	"github.com/elskow/userauth/internal/config"
	"github.com/elskow/userauth/internal/mailer"
	"github.com/elskow/userauth/internal/metrics"
)

type Server struct {
	config     *config.AppConfig
	log        *zap.Logger
	httpServer *http.Server
}

type Params struct {
	fx.In

	Config      *config.AppConfig
	Logger      *zap.Logger
	AuthHandler *auth.Handler
	RouteGuard  *auth.RouteGuard
	MailHandler *mailer.Handler
	Metrics     *metrics.Metrics
}

func NewServer(p Params) *Server {
	s := &Server{
		config: p.Config,
		log:    p.Logger,
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(p.Config.Server.Host, p.Config.Server.Port),
		Handler:      s.buildHandler(p),
		ReadTimeout:  p.Config.Server.ReadTimeout,
		WriteTimeout: p.Config.Server.WriteTimeout,
		IdleTimeout:  p.Config.Server.IdleTimeout,
		ErrorLog:     zap.NewStdLog(p.Logger),
	}

	return s
}

func (s *Server) buildHandler(p Params) http.Handler {
	r := mux.NewRouter()
	if p.Config.Metrics.Enabled {
		p.Metrics.Instrument(r)
		r.Handle(p.Config.Metrics.Path, p.Metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc(api.Health, healthz).Methods(http.MethodGet)
	p.AuthHandler.RegisterRoutes(r)
	p.MailHandler.RegisterRoutes(r)

	pages := r.NewRoute().Subrouter()
	pages.Use(p.RouteGuard.Middleware)
	for _, page := range api.GuardedPages {
		pages.HandleFunc(page, s.servePage(page)).Methods(http.MethodGet)
	}
	for _, page := range api.OpenPages {
		r.HandleFunc(page, s.servePage(page)).Methods(http.MethodGet)
	}

	staticDir := p.Config.Server.StaticDir
	r.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))),
	).Methods(http.MethodGet)

	var h http.Handler = r
	h = s.logRequests(h)
	if origins := p.Config.Server.AllowedOrigins; len(origins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
			handlers.AllowCredentials(),
		)(h)
	}
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(p.Logger)),
		handlers.PrintRecoveryStack(s.config.Env != EnvProduction),
	)(h)

	return h
}

// Handler exposes the full middleware chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// servePage serves <static_dir>/<name>.html for a page route. The home page
// maps to index.html.
func (s *Server) servePage(route string) http.HandlerFunc {
	name := strings.TrimPrefix(route, "/")
	if name == "" {
		name = "index"
	}
	file := filepath.Join(s.config.Server.StaticDir, name+".html")

	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, file)
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.Debug("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		zap.String("address", s.httpServer.Addr),
		zap.Object("config", serverConfigToField(s.config)),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}

	return nil
}

func serverConfigToField(config *config.AppConfig) zapcore.ObjectMarshaler {
	return zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddString("environment", os.Getenv("APP_ENV"))
		enc.AddString("database_driver", config.Database.Driver)
		enc.AddBool("mail_enabled", config.Mail.Enabled)
		enc.AddBool("metrics_enabled", config.Metrics.Enabled)
		enc.AddString("static_dir", config.Server.StaticDir)
		return nil
	})
}

func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if timeout := s.config.Server.ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"

	"github.com/xingyunzhou/augment2api/pkg/assets"
	"github.com/xingyunzhou/augment2api/pkg/config"
	"github.com/xingyunzhou/augment2api/pkg/credstore"
	"github.com/xingyunzhou/augment2api/pkg/oauth"
	"github.com/xingyunzhou/augment2api/pkg/relay"
	"github.com/xingyunzhou/augment2api/pkg/translate"
)

type Server struct {
	cfg            *config.ServerConfig
	store          credstore.Store
	pool           *credstore.Pool
	exchanger      *oauth.Exchanger
	translator     *translate.Translator
	upstream       *relay.Client
	metrics        *Metrics
	models         assets.ModelList
	static         fs.FS
	router         chi.Router
	httpServer     *http.Server
	now            func() time.Time
	activeRequests atomic.Int64
	draining       atomic.Bool
}

type Option func(*Server)

// WithStore replaces the backend opened from the store config.
func WithStore(store credstore.Store) Option {
	return func(s *Server) { s.store = store }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(ctx context.Context, cfg *config.ServerConfig, opts ...Option) (*Server, error) {
	models, err := assets.LoadModels()
	if err != nil {
		return nil, err
	}
	translator, err := translate.New(cfg.Upstream)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:        cfg,
		translator: translator,
		upstream:   relay.NewClient(cfg.Upstream),
		metrics:    NewMetrics(),
		models:     models,
		now:        time.Now,
		exchanger: &oauth.Exchanger{
			AuthorizeURL: cfg.OAuth.AuthorizeURL,
			ClientID:     cfg.OAuth.ClientID,
			StateTTL:     time.Duration(cfg.OAuth.StateTTLSeconds) * time.Second,
			HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		store, err := credstore.Open(ctx, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open credential store: %w", err)
		}
		s.store = store
	}
	s.pool = credstore.NewPool(s.store, credstore.WithClock(s.now))
	s.exchanger.Pool = s.pool
	s.exchanger.Now = s.now
	s.exchanger.OnResult = func(result string) {
		s.metrics.oauthExchanges.WithLabelValues(result).Inc()
	}
	s.translator.Clock = s.now

	if cfg.StaticDir != "" {
		s.static = os.DirFS(cfg.StaticDir)
	} else {
		s.static = assets.StaticFS()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLifecycleMiddleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/version", s.handleVersion)
	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, s.metrics.Handler())
	}

	r.Group(func(api chi.Router) {
		api.Use(s.authAPIMiddleware)
		api.Get("/auth", s.handleAuth)
		api.Post("/getToken", s.handleGetToken)
		api.Get("/getTokens", s.handleGetTokens)
		api.Delete("/deleteToken/{token}", s.handleDeleteToken)
		api.Get("/ws/tokens", s.handleTokenEvents)
		api.Post("/v1", s.handleChatCompletions)
		api.Post("/v1/chat", s.handleChatCompletions)
		api.Post("/v1/chat/completions", s.handleChatCompletions)
		api.Get("/v1/models", s.handleModels)
	})
	r.NotFound(s.handleStatic)
	r.MethodNotAllowed(s.handleStatic)
	s.router = r

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}
	s.refreshPoolGauge(ctx)
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Pool() *credstore.Pool { return s.pool }

func (s *Server) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Run serves until ctx is cancelled, then drains in-flight chat requests and
// shuts the listeners down.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if sw, ok := s.store.(credstore.Sweeper); ok {
		sched := credstore.NewScheduler(sw, s.cfg.Store.SweepSchedule)
		g.Go(func() error { return sched.Run(gctx) })
	}

	servers := []*http.Server{}
	if s.cfg.TLS.Enabled {
		mgr := &autocert.Manager{
			Cache:      autocert.DirCache(s.cfg.TLS.CacheDir),
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(s.cfg.TLS.Domain),
			Email:      s.cfg.TLS.Email,
		}
		httpsSrv := s.httpServer
		httpsSrv.Addr = ":443"
		httpsSrv.TLSConfig = &tls.Config{GetCertificate: mgr.GetCertificate, MinVersion: tls.VersionTLS12}
		httpChallenge := &http.Server{
			Addr:              ":80",
			Handler:           mgr.HTTPHandler(http.HandlerFunc(redirectHTTPS)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, httpChallenge, httpsSrv)
		g.Go(func() error {
			slog.Info("http challenge/redirect listening", "addr", ":80")
			return serveErr("http challenge server", httpChallenge.ListenAndServe())
		})
		g.Go(func() error {
			slog.Info("https listening", "addr", ":443", "domain", s.cfg.TLS.Domain)
			return serveErr("https server", httpsSrv.ListenAndServeTLS("", ""))
		})
	} else {
		servers = append(servers, s.httpServer)
		g.Go(func() error {
			slog.Info("augment2api listening", "addr", s.cfg.ListenAddr)
			return serveErr("http server", s.httpServer.ListenAndServe())
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		s.draining.Store(true)
		s.waitForIdle(30 * time.Second)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, srv := range servers {
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

func serveErr(name string, err error) error {
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "https://"+r.Host+r.RequestURI, http.StatusMovedPermanently)
}

func isChatPath(p string) bool {
	return p == "/v1" || strings.HasPrefix(p, "/v1/")
}

func (s *Server) requestLifecycleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chat := isChatPath(r.URL.Path)
		if chat && s.draining.Load() {
			w.Header().Set("Retry-After", "3")
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		if chat {
			s.activeRequests.Add(1)
			defer s.activeRequests.Add(-1)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) waitForIdle(limit time.Duration) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	deadline := time.Now().Add(limit)
	lastLog := time.Time{}
	for {
		active := s.activeRequests.Load()
		if active <= 0 {
			slog.Info("shutdown: no active chat requests")
			return
		}
		if time.Now().After(deadline) {
			slog.Warn("shutdown: giving up on active chat requests", "active", active)
			return
		}
		if lastLog.IsZero() || time.Since(lastLog) >= time.Second {
			slog.Info("shutdown: waiting for active chat requests", "active", active)
			lastLog = time.Now()
		}
		<-t.C
	}
}

func (s *Server) refreshPoolGauge(ctx context.Context) {
	tokens, err := s.pool.Tokens(ctx)
	if err != nil {
		slog.Warn("count tokens failed", "error", err)
		return
	}
	s.metrics.tokenPoolSize.Set(float64(len(tokens)))
}

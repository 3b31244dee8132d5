package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/voxscribe/apiserver/config"
	"github.com/voxscribe/apiserver/internal/db"
	"github.com/voxscribe/apiserver/internal/handlers"
	"github.com/voxscribe/apiserver/internal/logging"
	"github.com/voxscribe/apiserver/internal/metrics"
	"github.com/voxscribe/apiserver/internal/mq"
	"github.com/voxscribe/apiserver/internal/services"
	"github.com/voxscribe/apiserver/internal/storage"
	"github.com/voxscribe/apiserver/internal/store"
	"github.com/voxscribe/apiserver/internal/transcribe"
)

const (
	requestTimeout = 60 * time.Second
	// Upload, transcription and save run inside one request.
	workflowTimeout = 5 * time.Minute
	janitorInterval = time.Hour
)

// API bundles the services the router dispatches to.
type API struct {
	Auth           handlers.AuthService
	Transcriptions handlers.TranscriptionService
	Admin          handlers.AdminService
}

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     http.Handler
	db         *sql.DB
	mq         *mq.MQ
	log        zerolog.Logger

	stopJanitor context.CancelFunc
	janitorDone chan struct{}
}

// New connects every backend named in cfg and wires the services behind the router.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
	tokens, err := services.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}
	provider, err := transcribe.NewOpenAIProvider(cfg.Transcriber)
	if err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	audio, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	queue, err := mq.Connect(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	profileRepo := store.NewProfileRepository(dbConn)
	sessionRepo := store.NewSessionRepository(dbConn)
	transcriptionRepo := store.NewTranscriptionRepository(dbConn)

	api := API{
		Auth:           services.NewAuthService(userRepo, profileRepo, sessionRepo, tokens, log),
		Transcriptions: services.NewTranscriptionService(transcriptionRepo, audio, provider, queue, log),
		Admin:          services.NewAdminService(profileRepo, transcriptionRepo, queue, log),
	}
	router := NewRouter(log, api)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  time.Minute,
		WriteTimeout: workflowTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	janitorCtx, stop := context.WithCancel(context.Background())
	s := &Server{
		httpServer:  httpServer,
		router:      router,
		db:          dbConn,
		mq:          queue,
		log:         log,
		stopJanitor: stop,
		janitorDone: make(chan struct{}),
	}
	go func() {
		defer close(s.janitorDone)
		runJanitor(janitorCtx, sessionRepo, janitorInterval, log)
	}()

	log.Info().
		Str("storage", cfg.Storage.Backend).
		Str("bucket", audio.Bucket()).
		Str("mq_channel", queue.Channel()).
		Str("model", provider.Model()).
		Msg("server configured")
	return s, nil
}

// NewRouter builds the HTTP routes over api.
func NewRouter(log zerolog.Logger, api API) http.Handler {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.AccessLog(log),
		middleware.Recoverer,
		metrics.Instrument,
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", metrics.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, api.Auth)
		})
		r.Route("/profile", func(r chi.Router) {
			handlers.ProfileRouter(r, api.Auth)
		})
		r.Route("/admin", func(r chi.Router) {
			handlers.AdminRouter(r, api.Admin, api.Transcriptions, api.Auth, api.Auth)
		})
	})
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(workflowTimeout))
		r.Route("/transcriptions", func(r chi.Router) {
			handlers.TranscriptionRouter(r, api.Transcriptions, api.Auth, api.Auth)
		})
	})
	return router
}

// Router exposes the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and then releases the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	s.stopJanitor()
	<-s.janitorDone

	if s.mq != nil {
		if mqErr := s.mq.Close(); mqErr != nil {
			s.log.Warn().Err(mqErr).Msg("close mq")
		}
	}
	if s.db != nil {
		if dbErr := s.db.Close(); dbErr != nil {
			s.log.Warn().Err(dbErr).Msg("close database")
		}
	}
	return err
}

type sessionPurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// runJanitor drops expired session revocations every interval until ctx is done.
func runJanitor(ctx context.Context, sessions sessionPurger, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx, time.Now())
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Msg("purge expired sessions")
				}
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("expired sessions purged")
			}
		}
	}
}

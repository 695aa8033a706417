package api

import (
	"log/slog"
	"net/http"
	"time"

	"challenge_gateway/internal/api/handler"
	"challenge_gateway/internal/api/middleware"
	"challenge_gateway/internal/app/service"
	"challenge_gateway/internal/common/security"
	"challenge_gateway/internal/platform/realtime"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/rs/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(
	sessionService *service.SessionService,
	challengeService *service.ChallengeService,
	clock handler.Clock,
	hub *realtime.Hub,
	checks map[string]handler.Checker,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	handler.NewHealthHandler(checks, logger).RegisterRoutes(r)

	challengeHandler := handler.NewChallengeHandler(challengeService, logger)
	sessionHandler := handler.NewSessionHandler(sessionService, logger)
	workspaceHandler := handler.NewWorkspaceHandler(sessionService, challengeService, logger)
	eventsHandler := handler.NewEventsHandler(sessionService, hub, cfg.AllowedOrigins, logger)
	authenticate := middleware.Authenticator(sessionService)

	// API v1 Routes
	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Group(func(public chi.Router) {
			public.Use(chiMiddleware.Timeout(cfg.RequestTimeout))
			handler.NewTimeHandler(clock, logger).RegisterRoutes(public)
			public.Route("/challenges", challengeHandler.RegisterRoutes)
			sessionHandler.RegisterPublicRoutes(public)
		})

		v1.Route("/session", func(s chi.Router) {
			s.Group(func(authed chi.Router) {
				authed.Use(chiMiddleware.Timeout(cfg.RequestTimeout))
				authed.Use(jwtauth.Verifier(security.TokenAuth))
				authed.Use(authenticate)
				sessionHandler.RegisterRoutes(authed)
				workspaceHandler.RegisterRoutes(authed)
			})

			// Browsers cannot set headers on a websocket handshake, so the
			// stream also accepts the token as ?jwt=. No timeout applies.
			s.Group(func(stream chi.Router) {
				stream.Use(jwtauth.Verify(security.TokenAuth, jwtauth.TokenFromHeader, jwtauth.TokenFromQuery))
				stream.Use(authenticate)
				eventsHandler.RegisterRoutes(stream)
			})
		})
	})

	return r
}

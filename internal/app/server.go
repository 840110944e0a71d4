package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/markdave123-py/smartbot/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/smartbot/internal/api/middlewares"
	"github.com/markdave123-py/smartbot/internal/config"
	"github.com/markdave123-py/smartbot/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	users *services.UserService,
	bots *services.BotService,
	queries *services.QueryService,
	history *services.HistoryService,
) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, logger, users, bots, queries, history),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	users *services.UserService,
	bots *services.BotService,
	queries *services.QueryService,
	history *services.HistoryService,
) http.Handler {
	validate := validator.New()

	authHandler := handlers.NewAuthHandler(users, validate, logger)
	botHandler := handlers.NewBotHandler(bots, cfg.MaxUploadBytes(), validate, logger)
	queryHandler := handlers.NewQueryHandler(queries, logger)
	historyHandler := handlers.NewHistoryHandler(history, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	// Forwarded headers are caller-controlled unless a proxy rewrites them,
	// and the client address ends up in every chat record.
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(appMiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	// The widget runs on third-party sites, so origins default to "*".
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/widget.js", handlers.WidgetScript)

	requireAuth := appMiddleware.JWTMiddleware(cfg.JWTSecret)

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", authHandler.Register)
			auth.Post("/verify-otp", authHandler.VerifyOTP)
			auth.Post("/send-otp", authHandler.SendOTP)
			auth.Post("/login", authHandler.Login)
			auth.Post("/forgot-password", authHandler.ForgotPassword)
			auth.Post("/reset-password", authHandler.ResetPassword)

			auth.With(requireAuth).Post("/change-password", authHandler.ChangePassword)
			auth.With(requireAuth).Get("/me", authHandler.Me)
		})

		// dashboard users and anonymous widget visitors share this endpoint
		api.With(appMiddleware.OptionalJWT(cfg.JWTSecret), middleware.Timeout(cfg.CompletionTimeout+15*time.Second)).
			Post("/query/{bot_id}", queryHandler.Query)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(requireAuth)

			protected.Get("/user/me", authHandler.Me)

			protected.Post("/create-bot", botHandler.CreateBot)
			protected.Get("/organizations", botHandler.ListBots)
			protected.Get("/organizations/{id}", botHandler.GetBot)
			protected.Post("/bot/import", botHandler.ImportBot)

			protected.Route("/bot/{id}", func(bot chi.Router) {
				bot.Delete("/", botHandler.DeleteBot)
				bot.Get("/settings", botHandler.GetSettings)
				bot.Put("/settings", botHandler.UpdateSettings)
				bot.Get("/embed", botHandler.EmbedCode)
				bot.Get("/source", botHandler.DownloadSource)
				bot.Get("/export", botHandler.ExportBot)
				bot.Get("/analytics", historyHandler.Analytics)
				bot.Get("/chat-history", historyHandler.List)
				bot.Delete("/chat-history", historyHandler.Clear)
				bot.Get("/chat-history/export", historyHandler.Export)
			})

			protected.Delete("/chat-history/{id}", historyHandler.DeleteOne)
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

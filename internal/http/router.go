package http

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tastykitchen/server/internal/auth"
	"github.com/tastykitchen/server/internal/http/handlers"
	"github.com/tastykitchen/server/internal/mailer"
	"github.com/tastykitchen/server/internal/middleware"
	"github.com/tastykitchen/server/internal/model"
)

// RouterDeps holds everything the router needs
type RouterDeps struct {
	AuthHandler *handlers.AuthHandler
	AuthService *auth.AuthService
	JWTService  *auth.JWTService
	StoreKind   string
	// RequestLimiter guards code requests, VerifyLimiter guards login and code verification.
	// A nil limiter disables limiting for its routes.
	RequestLimiter middleware.Limiter
	VerifyLimiter  middleware.Limiter
	// DevOutbox enables the mail preview route when set
	DevOutbox      *mailer.DevMailer
	AllowedOrigins []string
	Logger         *slog.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.NewHealthHandler(deps.StoreKind).ServeHTTP)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", deps.AuthHandler.HandleRegister)

		r.Group(func(r chi.Router) {
			useLimiter(r, deps.RequestLimiter)
			r.Post("/request-otp", deps.AuthHandler.HandleRequestOTP)
			r.Post("/request-otp-phone", deps.AuthHandler.HandleRequestPhoneOTP)
		})

		r.Group(func(r chi.Router) {
			useLimiter(r, deps.VerifyLimiter)
			r.Post("/login", deps.AuthHandler.HandleLogin)
			r.Post("/verify-otp", deps.AuthHandler.HandleVerifyOTP)
			r.Post("/verify-otp-phone", deps.AuthHandler.HandleVerifyPhoneOTP)
			r.Post("/google", deps.AuthHandler.HandleGoogle)
		})
	})

	// Protected routes (require valid session token)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(deps.JWTService, deps.AuthService))
		r.Get("/me", deps.AuthHandler.HandleMe)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(model.RoleAdmin))
			r.Get("/accounts", deps.AuthHandler.HandleFindAccount)
		})
	})

	if deps.DevOutbox != nil {
		r.Get("/api/dev/mail/{id}", handlers.NewDevMailHandler(deps.DevOutbox).HandlePreview)
	}

	return r
}

func useLimiter(r chi.Router, limiter middleware.Limiter) {
	if limiter != nil {
		r.Use(middleware.RateLimitMiddleware(limiter, middleware.GetIPKey))
	}
}

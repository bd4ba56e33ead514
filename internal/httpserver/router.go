package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"leaddesk/internal/config"
	"leaddesk/internal/domain"
	"leaddesk/internal/service"

	_ "leaddesk/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Services bundles what the router serves.
type Services struct {
	Auth          *service.AuthService
	Leads         *service.LeadService
	Notifications *service.NotificationService
	Limiter       *RateLimiter
	// WS serves /ws; nil leaves the route unregistered.
	WS http.Handler
}

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(cfg *config.Config, svc Services) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limiter := svc.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName + " API",
			"docs":    "/docs/index.html",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"), //The url pointing to API definition
	))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Auth routes (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(svc.Auth))
			r.Post("/login", handleLogin(svc.Auth))
		})

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(svc.Auth))

			r.Get("/auth/me", handleMe())

			r.Route("/tour", func(r chi.Router) {
				r.Get("/leads", handleListLeads(svc.Leads))

				r.Group(func(r chi.Router) {
					r.Use(limiter.Limit)
					r.With(RequireRole(domain.RoleBuyer)).Post("/request", handleRequestTour(svc.Leads))

					r.Group(func(r chi.Router) {
						r.Use(RequireRole(domain.RoleAgent))
						r.Patch("/claim-tour/{id}", handleClaimTour(svc.Leads))
						r.Post("/reject-tour/{id}", handleRejectTour(svc.Leads))
						r.Patch("/update-status/{id}", handleUpdateTourStatus(svc.Leads))
					})
				})
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", handleListNotifications(svc.Notifications))
				r.Post("/read-all", handleMarkAllNotificationsRead(svc.Notifications))
				r.Patch("/{id}/read", handleMarkNotificationRead(svc.Notifications))
			})
		})
	})

	// WebSocket endpoint
	if svc.WS != nil {
		r.Get("/ws", svc.WS.ServeHTTP)
	}

	return r
}

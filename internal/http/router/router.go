package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"auth-session-service/internal/http/handler"
	"auth-session-service/internal/http/middleware"
	"auth-session-service/internal/http/response"
	"auth-session-service/internal/security"
)

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	UserHandler    *handler.UserHandler
	AccessTokens   *security.AccessTokenManager
	AuthLimiter    *middleware.RateLimiter
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if dep.AuthLimiter != nil {
				r.Use(dep.AuthLimiter.Middleware())
			}
			r.Post("/register", dep.AuthHandler.Register)
			r.Post("/login", dep.AuthHandler.Login)
			r.Post("/refresh", dep.AuthHandler.Refresh)
			r.Post("/logout", dep.AuthHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(dep.AccessTokens))
			r.Get("/users", dep.UserHandler.List)
			r.Get("/users/{id}", dep.UserHandler.Show)
			r.Delete("/users/{id}", dep.UserHandler.Delete)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}

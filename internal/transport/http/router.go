package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/kasb-api/internal/application/auth"
	"github.com/kasb-api/internal/application/mfa"
	"github.com/kasb-api/internal/application/oauth"
	"github.com/kasb-api/internal/application/user"
	"github.com/kasb-api/internal/config"
	"github.com/kasb-api/internal/domain"
	"github.com/kasb-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/kasb-api/internal/infrastructure/jwt"
	oauthinfra "github.com/kasb-api/internal/infrastructure/oauth"
	"github.com/kasb-api/internal/infrastructure/smtp"
	"github.com/kasb-api/internal/transport/http/handler"
	appmiddleware "github.com/kasb-api/internal/transport/http/middleware"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         *dynamo.UserRepo
	SessionRepo      *dynamo.SessionRepo
	VerificationRepo *dynamo.VerificationRepo
	Mailer           smtp.Mailer
	JWTProvider      *jwtinfra.Provider
	Google           *oauthinfra.Provider
	LinkedIn         *oauthinfra.Provider
}

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider, deps.UserRepo)

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	userSvc := user.NewService(deps.UserRepo)
	authSvc := auth.NewService(auth.ServiceDeps{
		Users:             userSvc,
		SessionRepo:       deps.SessionRepo,
		VerificationRepo:  deps.VerificationRepo,
		Tokens:            deps.JWTProvider,
		Mailer:            deps.Mailer,
		FrontendURL:       cfg.FrontendURL,
		RotationThreshold: cfg.RotationThreshold,
	})
	mfaSvc := mfa.NewService(deps.UserRepo, authSvc, cfg.MFAIssuer)
	oauthSvc := oauth.NewService(deps.UserRepo, authSvc, deps.Google, deps.LinkedIn)

	cookies := handler.CookieConfig{
		Production: cfg.IsProduction(),
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(authSvc, cookies)
	mfaH := handler.NewMFAHandler(mfaSvc, cookies)
	oauthH := handler.NewOAuthHandler(oauthSvc, cookies, cfg.FrontendURL)
	sessionH := handler.NewSessionHandler(authSvc)
	userH := handler.NewUserHandler(userSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check", healthH.Ping)

		r.With(sensitiveRL.Limit).Post("/auth/register", authH.Register)
		r.With(sensitiveRL.Limit).Post("/auth/login", authH.Login)
		r.Post("/auth/refresh", authH.Refresh)
		r.Post("/auth/verify-email", authH.VerifyEmail)
		r.With(sensitiveRL.Limit).Post("/auth/forgot-password", authH.ForgotPassword)
		r.Post("/auth/reset-password", authH.ResetPassword)
		r.With(sensitiveRL.Limit).Post("/auth/mfa/verify-login", mfaH.VerifyLogin)

		r.Get("/auth/{provider}", oauthH.Start)
		r.Get("/auth/{provider}/callback", oauthH.Callback)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Post("/auth/logout", authH.Logout)
			r.Get("/users/me", userH.Me)
			r.Put("/users/role", authH.UpdateRole)

			r.Post("/auth/mfa/setup", mfaH.Setup)
			r.Post("/auth/mfa/verify", mfaH.Verify)
			r.Delete("/auth/mfa", mfaH.Revoke)

			r.Get("/sessions", sessionH.Current)
			r.Get("/sessions/all", sessionH.List)
			r.Delete("/sessions/{id}", sessionH.Delete)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Get("/users/{id}", userH.Get)
			})
		})
	})

	return r
}

package router

import (
	"net/http"

	"github.com/dtroode/apiauth-server/internal/api/http/handler"
	"github.com/dtroode/apiauth-server/internal/api/http/middleware"
	"github.com/dtroode/apiauth-server/internal/logger"
)

// Router builds the REST API.
type Router struct {
	authenticator middleware.Authenticator
	tokenService  handler.TokenService
	verifier      handler.CredentialVerifier
	pinger        handler.Pinger
	logger        *logger.Logger
}

// New creates a Router. verifier and pinger may be nil.
func New(
	authenticator middleware.Authenticator,
	tokenService handler.TokenService,
	verifier handler.CredentialVerifier,
	pinger handler.Pinger,
	logger *logger.Logger,
) *Router {
	return &Router{
		authenticator: authenticator,
		tokenService:  tokenService,
		verifier:      verifier,
		pinger:        pinger,
		logger:        logger,
	}
}

// Register returns the root handler with all routes and middlewares.
func (r *Router) Register() http.Handler {
	auth := handler.NewAuth(r.tokenService, r.verifier, r.logger)
	health := handler.NewHealth(r.pinger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Check)

	if auth.HasLogin() {
		mux.HandleFunc("POST /api/authentication/login", auth.Login)
	}
	mux.HandleFunc("POST /api/authentication/refresh", auth.Refresh)

	protected := middleware.RequireAuth()
	mux.Handle("POST /api/authentication/logout", protected(http.HandlerFunc(auth.Logout)))
	mux.Handle("GET /api/authentication/me", protected(http.HandlerFunc(auth.Me)))

	return middleware.Chain(mux,
		middleware.Recover(r.logger),
		middleware.Authenticate(r.authenticator),
		middleware.Logging(r.logger),
	)
}

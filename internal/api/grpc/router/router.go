package router

import (
	"context"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/selector"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dtroode/apiauth-server/internal/api/grpc/handler"
	"github.com/dtroode/apiauth-server/internal/api/grpc/middleware"
	"github.com/dtroode/apiauth-server/internal/logger"
	"github.com/dtroode/apiauth-server/internal/model"
)

// Router wires the Session service and its interceptors into a gRPC server.
type Router struct {
	authenticator  middleware.Authenticator
	tokenService   handler.TokenService
	contextManager model.ContextManager
	logger         *logger.Logger
}

// New creates new gRPC Router instance.
func New(
	authenticator middleware.Authenticator,
	tokenService handler.TokenService,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Router {
	return &Router{
		authenticator:  authenticator,
		tokenService:   tokenService,
		contextManager: contextManager,
		logger:         logger,
	}
}

// requiresAuth reports whether a call must carry a valid access token.
// Refresh and health checks are reachable without one.
func requiresAuth(_ context.Context, c interceptors.CallMeta) bool {
	method := c.FullMethod()
	if method == handler.SessionRefreshMethod {
		return false
	}
	return !strings.HasPrefix(method, "/"+healthpb.Health_ServiceDesc.ServiceName+"/")
}

// Register builds the gRPC server with logging and authentication
// interceptors and registers all services.
func (r *Router) Register() *grpc.Server {
	logging := middleware.NewLogging(r.logger)
	authenticate := middleware.NewAuthenticate(r.authenticator, r.contextManager, r.logger)

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logging.HandleGRPC,
			selector.UnaryServerInterceptor(
				auth.UnaryServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(requiresAuth),
			),
		),
		grpc.ChainStreamInterceptor(
			logging.HandleGRPCStream,
			selector.StreamServerInterceptor(
				auth.StreamServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(requiresAuth),
			),
		),
	)
	r.registerSessionRoutes(s)
	r.registerHealth(s)

	return s
}

func (r *Router) registerSessionRoutes(server *grpc.Server) {
	sessionHandler := handler.NewSession(r.tokenService, r.contextManager, r.logger)
	handler.RegisterSessionServer(server, sessionHandler)
}

func (r *Router) registerHealth(server *grpc.Server) {
	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.SessionServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)
}

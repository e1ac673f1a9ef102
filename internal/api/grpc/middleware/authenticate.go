package middleware

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/apiauth-server/internal/authn"
	"github.com/dtroode/apiauth-server/internal/logger"
	"github.com/dtroode/apiauth-server/internal/model"
)

// unauthenticatedMessage is returned for every rejected call, whatever the reason.
const unauthenticatedMessage = "unauthenticated"

// Authenticator resolves an Authorization header value.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (context.Context, authn.Result)
}

// Authenticate validates bearer tokens and injects the principal into context.
type Authenticate struct {
	authenticator  Authenticator
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(authenticator Authenticator, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{authenticator: authenticator, contextManager: contextManager, logger: logger}
}

// AuthFunc reads the authorization metadata, authenticates it and returns a
// context carrying the principal.
func (m *Authenticate) AuthFunc(ctx context.Context) (context.Context, error) {
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if authHeaders := md.Get("authorization"); len(authHeaders) > 0 {
			header = authHeaders[0]
		}
	}

	ctx, result := m.authenticator.Authenticate(ctx, header)
	principal, ok := result.Principal()
	if !ok {
		m.logger.Debug("Authenticate middleware: call rejected", "outcome", result.Outcome().String())
		return nil, status.Error(codes.Unauthenticated, unauthenticatedMessage)
	}

	return m.contextManager.SetPrincipalToContext(ctx, principal), nil
}

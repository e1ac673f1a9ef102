package context

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"

	"github.com/dtroode/apiauth-server/internal/model"
)

// Metadata keys the authenticated principal is stored under.
const (
	userIDKey  string = "user_id"
	tokenIDKey string = "token_id"
)

// Manager keeps the authenticated principal in incoming gRPC metadata.
// Values set by the authentication interceptor replace anything the client
// sent under the same keys.
type Manager struct{}

var _ model.ContextManager = (*Manager)(nil)

// NewManager creates a new gRPC context manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetPrincipalToContext stores principal in the incoming metadata of ctx.
func (m *Manager) SetPrincipalToContext(ctx context.Context, principal model.Principal) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		md = metadata.New(nil)
	} else {
		md = md.Copy()
	}
	md.Set(userIDKey, principal.UserID.String())
	md.Set(tokenIDKey, principal.TokenID.String())

	return metadata.NewIncomingContext(ctx, md)
}

// GetPrincipalFromContext reads the principal back. Both ids must be present
// and valid.
func (m *Manager) GetPrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return model.Principal{}, false
	}

	userID, ok := parseID(md, userIDKey)
	if !ok {
		return model.Principal{}, false
	}
	tokenID, ok := parseID(md, tokenIDKey)
	if !ok {
		return model.Principal{}, false
	}

	return model.Principal{UserID: userID, TokenID: tokenID}, true
}

func parseID(md metadata.MD, key string) (uuid.UUID, bool) {
	values := md.Get(key)
	if len(values) == 0 {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(values[0])
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

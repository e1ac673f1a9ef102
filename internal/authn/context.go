package authn

import (
	"context"

	"github.com/dtroode/apiauth-server/internal/model"
	"github.com/dtroode/apiauth-server/internal/opaque"
)

type principalKey struct{}

type opaqueTokenKey struct{}

func WithPrincipal(ctx context.Context, principal model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

func PrincipalFrom(ctx context.Context) (model.Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(model.Principal)
	return principal, ok
}

func WithOpaqueToken(ctx context.Context, token opaque.Token) context.Context {
	return context.WithValue(ctx, opaqueTokenKey{}, token)
}

func OpaqueTokenFrom(ctx context.Context) (opaque.Token, bool) {
	token, ok := ctx.Value(opaqueTokenKey{}).(opaque.Token)
	return token, ok
}

// ContextManager keeps the principal in context values. It is used by the
// HTTP transport, where there is no metadata to carry it.
type ContextManager struct{}

var _ model.ContextManager = (*ContextManager)(nil)

func NewContextManager() *ContextManager {
	return &ContextManager{}
}

func (m *ContextManager) SetPrincipalToContext(ctx context.Context, principal model.Principal) context.Context {
	return WithPrincipal(ctx, principal)
}

func (m *ContextManager) GetPrincipalFromContext(ctx context.Context) (model.Principal, bool) {
	return PrincipalFrom(ctx)
}

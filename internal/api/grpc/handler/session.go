package handler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dtroode/apiauth-server/internal/codec"
	"github.com/dtroode/apiauth-server/internal/logger"
	"github.com/dtroode/apiauth-server/internal/model"
)

// TokenService defines token refresh and revoke operations.
type TokenService interface {
	Refresh(ctx context.Context, refreshToken string) (model.IssuedTokens, error)
	Revoke(ctx context.Context, tokenID uuid.UUID) error
}

// Session handles gRPC endpoints for an authenticated session.
type Session struct {
	tokenService   TokenService
	contextManager model.ContextManager
	logger         *logger.Logger
}

var _ SessionServer = (*Session)(nil)

// NewSession creates a new Session handler.
func NewSession(tokenService TokenService, contextManager model.ContextManager, logger *logger.Logger) *Session {
	return &Session{
		tokenService:   tokenService,
		contextManager: contextManager,
		logger:         logger,
	}
}

// WhoAmI returns the authenticated principal.
func (h *Session) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	principal, ok := h.contextManager.GetPrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	return structpb.NewStruct(map[string]interface{}{
		"user_id":  principal.UserID.String(),
		"token_id": codec.ShortID(principal.TokenID),
	})
}

// Refresh exchanges a refresh token for a new grant.
func (h *Session) Refresh(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh token is required")
	}

	issued, err := h.tokenService.Refresh(ctx, req.GetValue())
	if err != nil {
		h.logger.Info("Session handler: refresh failed", "error", err)
		return nil, handleError(err)
	}

	h.logger.Debug("Session handler: refresh completed", "token_id", codec.ShortID(issued.TokenID))

	return structpb.NewStruct(map[string]interface{}{
		"access_token":       issued.AccessToken,
		"refresh_token":      issued.RefreshToken,
		"refresh_expires_at": issued.RefreshExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout revokes the grant of the calling access token.
func (h *Session) Logout(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	principal, ok := h.contextManager.GetPrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	if err := h.tokenService.Revoke(ctx, principal.TokenID); err != nil && !errors.Is(err, model.ErrNotFound) {
		h.logger.Error("Session handler: logout failed",
			"token_id", codec.ShortID(principal.TokenID),
			"error", err.Error())
		return nil, handleError(err)
	}

	return &emptypb.Empty{}, nil
}

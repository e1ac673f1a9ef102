package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/apiauth-server/internal/logger"
	"github.com/dtroode/apiauth-server/internal/model"
	"github.com/dtroode/apiauth-server/internal/opaque"
)

// PayloadSealer turns an opaque token into its encrypted text form.
type PayloadSealer interface {
	Serialize(token opaque.Token) (string, bool)
}

// TokenService issues, rotates and revokes grants. Every grant is one token
// record; records are replaced, never updated.
type TokenService struct {
	manager model.CarrierManager
	sealer  PayloadSealer
	store   model.TokenRecordStore
	logger  *logger.Logger
	now     func() time.Time
}

func NewTokenService(
	manager model.CarrierManager,
	sealer PayloadSealer,
	store model.TokenRecordStore,
	logger *logger.Logger,
) *TokenService {
	return &TokenService{
		manager: manager,
		sealer:  sealer,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Issue creates a new grant for a user whose credentials were verified
// elsewhere.
func (s *TokenService) Issue(ctx context.Context, userID uuid.UUID) (model.IssuedTokens, error) {
	token := opaque.Issue()

	payload, ok := s.sealer.Serialize(token)
	if !ok {
		return model.IssuedTokens{}, model.ErrPayloadSeal
	}

	tokens, err := s.manager.Generate(token.String(), payload)
	if err != nil {
		return model.IssuedTokens{}, fmt.Errorf("issue carrier: %w", err)
	}

	record := model.TokenRecord{
		ID:               token.ID,
		OwnerID:          userID,
		AccessToken:      tokens.AccessToken,
		RefreshTokenHash: hashRefresh(tokens.RefreshToken),
		RefreshExpiresAt: tokens.RefreshExpiresAt,
		CreatedAt:        s.now(),
	}
	if err := s.store.Insert(ctx, record); err != nil {
		return model.IssuedTokens{}, fmt.Errorf("persist token record: %w", err)
	}

	s.logger.Info("TokenService: issued token", "user_id", userID, "token_id", token.String())

	return model.IssuedTokens{
		TokenID:          token.ID,
		AccessToken:      tokens.AccessToken,
		AccessExpiresAt:  tokens.AccessExpiresAt,
		RefreshToken:     tokens.RefreshToken,
		RefreshExpiresAt: tokens.RefreshExpiresAt,
	}, nil
}

// Refresh exchanges a refresh token for a new grant. The new grant is issued
// before the old one is revoked, so a failed issue leaves the old grant
// usable. When a concurrent refresh of the same token wins the revoke, the
// new grant is discarded and the refresh fails, so a refresh token works once.
func (s *TokenService) Refresh(ctx context.Context, presentedRefresh string) (model.IssuedTokens, error) {
	presentedRefresh = strings.TrimSpace(presentedRefresh)
	if presentedRefresh == "" {
		return model.IssuedTokens{}, model.ErrNotFound
	}

	// The digest lookup is the comparison; only an exact match is found.
	record, err := s.store.FindByRefreshHash(ctx, hashRefresh(presentedRefresh))
	if err != nil {
		return model.IssuedTokens{}, err
	}

	if !s.now().Before(record.RefreshExpiresAt) {
		return model.IssuedTokens{}, model.ErrTokenExpired
	}

	issued, err := s.Issue(ctx, record.OwnerID)
	if err != nil {
		return model.IssuedTokens{}, err
	}

	if err := s.store.Delete(ctx, record.ID); err != nil {
		s.discard(ctx, issued.TokenID)
		if errors.Is(err, model.ErrNotFound) {
			return model.IssuedTokens{}, model.ErrNotFound
		}
		return model.IssuedTokens{}, fmt.Errorf("revoke rotated token: %w", err)
	}

	return issued, nil
}

// discard revokes a grant issued by a refresh that could not complete.
func (s *TokenService) discard(ctx context.Context, tokenID uuid.UUID) {
	if err := s.store.Delete(ctx, tokenID); err != nil {
		s.logger.Error("TokenService: failed to discard rotated grant", "token_id", tokenID, "error", err)
	}
}

// Revoke deletes the grant with the given token id.
func (s *TokenService) Revoke(ctx context.Context, tokenID uuid.UUID) error {
	if err := s.store.Delete(ctx, tokenID); err != nil {
		return err
	}
	s.logger.Info("TokenService: revoked token", "token_id", tokenID)
	return nil
}

// RevokeAllForUser deletes every grant owned by userID.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.store.DeleteByOwner(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	s.logger.Info("TokenService: revoked user tokens", "user_id", userID, "count", n)
	return n, nil
}

// PurgeExpired deletes grants whose refresh window has ended.
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return n, nil
}

// RunJanitor calls PurgeExpired every interval until ctx is done.
func (s *TokenService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("TokenService: janitor failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("TokenService: purged expired tokens", "count", n)
			}
		}
	}
}

func hashRefresh(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

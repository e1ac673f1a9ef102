// Package handler contains the REST endpoints of the authentication API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/apiauth-server/internal/authn"
	"github.com/dtroode/apiauth-server/internal/codec"
	"github.com/dtroode/apiauth-server/internal/logger"
	"github.com/dtroode/apiauth-server/internal/model"
)

// maxBodyBytes caps the JSON bodies Login and Refresh accept.
const maxBodyBytes = 1 << 16

// TokenService issues and revokes grants.
type TokenService interface {
	Issue(ctx context.Context, userID uuid.UUID) (model.IssuedTokens, error)
	Refresh(ctx context.Context, refreshToken string) (model.IssuedTokens, error)
	Revoke(ctx context.Context, tokenID uuid.UUID) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// CredentialVerifier checks a login and password and returns the user id.
// It returns model.ErrInvalidCredentials for a wrong pair.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, login, password string) (uuid.UUID, error)
}

// Auth serves /api/authentication.
type Auth struct {
	tokenService TokenService
	verifier     CredentialVerifier
	logger       *logger.Logger
}

// NewAuth creates an Auth handler. verifier may be nil, in which case Login
// is not available.
func NewAuth(tokenService TokenService, verifier CredentialVerifier, logger *logger.Logger) *Auth {
	return &Auth{
		tokenService: tokenService,
		verifier:     verifier,
		logger:       logger,
	}
}

// HasLogin reports whether a credential verifier is configured.
func (h *Auth) HasLogin() bool {
	return h.verifier != nil
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshTokenResult struct {
	TokenString string    `json:"tokenString"`
	ExpireAt    time.Time `json:"expireAt"`
}

type authResult struct {
	AccessToken  string             `json:"accessToken"`
	RefreshToken refreshTokenResult `json:"refreshToken"`
}

type principalResponse struct {
	UserID  uuid.UUID `json:"userId"`
	TokenID string    `json:"tokenId"`
}

type logoutResponse struct {
	Revoked int64 `json:"revoked"`
}

func newAuthResult(issued model.IssuedTokens) authResult {
	return authResult{
		AccessToken: issued.AccessToken,
		RefreshToken: refreshTokenResult{
			TokenString: issued.RefreshToken,
			ExpireAt:    issued.RefreshExpiresAt.UTC(),
		},
	}
}

// Login verifies credentials and issues a grant.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Login == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := h.verifier.VerifyCredentials(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			h.logger.Info("Auth handler: login rejected", "login", req.Login)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("Auth handler: credential check failed", "login", req.Login, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	issued, err := h.tokenService.Issue(r.Context(), userID)
	if err != nil {
		h.logger.Error("Auth handler: issue failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, newAuthResult(issued))
}

// Refresh exchanges a refresh token for a new grant.
func (h *Auth) Refresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	issued, err := h.tokenService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if isRefreshRejection(err) {
			h.logger.Info("Auth handler: refresh rejected", "reason", err)
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		h.logger.Error("Auth handler: refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, newAuthResult(issued))
}

// Logout revokes the grant of the current access token, or every grant of
// the user when the query has all=true.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := authn.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	if r.URL.Query().Get("all") == "true" {
		n, err := h.tokenService.RevokeAllForUser(r.Context(), principal.UserID)
		if err != nil {
			h.logger.Error("Auth handler: revoke all failed", "user_id", principal.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, logoutResponse{Revoked: n})
		return
	}

	err := h.tokenService.Revoke(r.Context(), principal.TokenID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, logoutResponse{Revoked: 1})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusOK, logoutResponse{Revoked: 0})
	default:
		h.logger.Error("Auth handler: revoke failed", "token_id", codec.ShortID(principal.TokenID), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Me returns the authenticated principal.
func (h *Auth) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := authn.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	writeJSON(w, http.StatusOK, principalResponse{
		UserID:  principal.UserID,
		TokenID: codec.ShortID(principal.TokenID),
	})
}

func isRefreshRejection(err error) bool {
	return errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrTokenExpired)
}

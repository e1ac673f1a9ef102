// Package authn resolves the Authorization header of a request into an
// authenticated principal.
package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dtroode/apiauth-server/internal/logger"
	"github.com/dtroode/apiauth-server/internal/model"
	"github.com/dtroode/apiauth-server/internal/opaque"
)

// CarrierVerifier checks the signed outer token.
type CarrierVerifier interface {
	Validate(accessToken string) (model.CarrierClaims, bool)
}

// PayloadCodec opens the opaque token embedded in the carrier.
type PayloadCodec interface {
	Parse(text string) (opaque.Token, bool)
}

// RecordFinder resolves a token id to its record.
type RecordFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (model.TokenRecord, error)
}

// Recorder observes every authentication attempt.
type Recorder interface {
	Record(ctx context.Context, result Result)
}

// Handler authenticates requests. It is safe for concurrent use.
type Handler struct {
	verifier CarrierVerifier
	payloads PayloadCodec
	records  RecordFinder
	recorder Recorder
	logger   *logger.Logger
}

// NewHandler creates a Handler. recorder may be nil.
func NewHandler(
	verifier CarrierVerifier,
	payloads PayloadCodec,
	records RecordFinder,
	recorder Recorder,
	logger *logger.Logger,
) *Handler {
	return &Handler{
		verifier: verifier,
		payloads: payloads,
		records:  records,
		recorder: recorder,
		logger:   logger,
	}
}

// bearerScheme is the authorization scheme carrier tokens are sent under.
const bearerScheme = "Bearer"

// BearerToken returns the last whitespace separated segment of an
// Authorization header value. A header holding only the scheme carries no
// token.
func BearerToken(header string) string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 && strings.EqualFold(fields[0], bearerScheme) {
		return ""
	}
	return fields[len(fields)-1]
}

// Authenticate resolves the Authorization header value. The returned context
// carries the opened opaque token, and the principal on success.
func (h *Handler) Authenticate(ctx context.Context, authorization string) (context.Context, Result) {
	ctx, result := h.authenticate(ctx, authorization)
	if h.recorder != nil {
		h.recorder.Record(ctx, result)
	}
	return ctx, result
}

func (h *Handler) authenticate(ctx context.Context, authorization string) (context.Context, Result) {
	bearer := BearerToken(authorization)
	if bearer == "" {
		h.logger.Debug("Authenticate: no credential supplied")
		return ctx, NoResult()
	}

	claims, ok := h.verifier.Validate(bearer)
	if !ok {
		h.logger.Debug("Authenticate: carrier token rejected")
		return ctx, NoResult()
	}

	token, ok := h.payloads.Parse(claims.Payload)
	if !ok {
		h.logger.Error("Authenticate: opaque payload failed to open",
			"subject", claims.Subject,
			"jti", claims.ID,
		)
		return ctx, Fail(OutcomeMalformedPayload, opaque.Token{}, ErrMalformedPayload)
	}
	ctx = WithOpaqueToken(ctx, token)

	record, err := h.records.FindByID(ctx, token.ID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			h.logger.Warn("Authenticate: unknown or revoked token", "token_id", token.String())
			return ctx, Fail(OutcomeUnknownToken, token, ErrUnknownToken)
		}
		h.logger.Error("Authenticate: failed to look up token record",
			"token_id", token.String(),
			"error", err,
		)
		return ctx, Fail(OutcomeLookupFailed, token, fmt.Errorf("%w: %w", ErrLookupFailed, err))
	}

	principal := model.Principal{
		UserID:  record.OwnerID,
		TokenID: record.ID,
	}
	ctx = WithPrincipal(ctx, principal)

	return ctx, Success(principal, token)
}

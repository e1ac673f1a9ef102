package model

import (
	"time"

	"github.com/google/uuid"
)

// CarrierManager issues and validates signed access tokens.
type CarrierManager interface {
	Generate(subject, payload string) (CarrierTokens, error)
	Validate(accessToken string) (CarrierClaims, bool)
}

// CarrierTokens is the output of a single grant: a signed access token and an
// independent random refresh token.
type CarrierTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// CarrierClaims are the claims of an access token whose signature, algorithm,
// issuer, audience and expiry have been verified.
type CarrierClaims struct {
	ID        string
	Subject   string
	Payload   string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IssuedTokens is handed back to the login collaborator.
type IssuedTokens struct {
	TokenID          uuid.UUID
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

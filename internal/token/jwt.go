package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dtroode/apiauth-server/internal/model"
)

var (
	ErrInvalidToken      = errors.New("access token is invalid")
	ErrTokenExpired      = errors.New("access token expired")
	ErrAlgorithmMismatch = errors.New("access token signing algorithm mismatch")
	ErrMissingSigningKey = errors.New("signing key is not configured")
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// signingMethod is the only algorithm access tokens are signed and accepted with.
var signingMethod = jwt.SigningMethodHS256

// Claims represents access token claims. PayloadHash carries the serialized
// opaque token.
type Claims struct {
	jwt.RegisteredClaims
	PayloadHash string `json:"payload_hash"`
}

// Params configures a JWT manager.
type Params struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Option customizes a JWT manager.
type Option func(*JWT)

// WithClock replaces the clock used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(j *JWT) {
		j.now = now
	}
}

// WithRandom replaces the source of refresh token randomness.
func WithRandom(r io.Reader) Option {
	return func(j *JWT) {
		j.random = r
	}
}

// JWT implements model.CarrierManager backed by symmetric HMAC.
type JWT struct {
	signingKey []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	random     io.Reader
}

var _ model.CarrierManager = (*JWT)(nil)

// NewJWT creates a JWT manager. A missing signing key is a configuration error.
func NewJWT(params Params, opts ...Option) (*JWT, error) {
	if len(params.SigningKey) == 0 {
		return nil, ErrMissingSigningKey
	}

	j := &JWT{
		signingKey: params.SigningKey,
		issuer:     params.Issuer,
		audience:   params.Audience,
		accessTTL:  params.AccessTTL,
		refreshTTL: params.RefreshTTL,
		now:        time.Now,
		random:     rand.Reader,
	}
	if j.accessTTL <= 0 {
		j.accessTTL = DefaultAccessTTL
	}
	if j.refreshTTL <= 0 {
		j.refreshTTL = DefaultRefreshTTL
	}
	for _, opt := range opts {
		opt(j)
	}

	return j, nil
}

// Generate signs an access token for subject embedding payload, and creates
// an independent refresh token.
func (j *JWT) Generate(subject, payload string) (model.CarrierTokens, error) {
	now := j.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTTL)),
		},
		PayloadHash: payload,
	}
	if j.audience != "" {
		claims.Audience = jwt.ClaimStrings{j.audience}
	}

	accessToken, err := jwt.NewWithClaims(signingMethod, claims).SignedString(j.signingKey)
	if err != nil {
		return model.CarrierTokens{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshToken, err := newRefreshToken(j.random)
	if err != nil {
		return model.CarrierTokens{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return model.CarrierTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  claims.ExpiresAt.Time,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: now.Add(j.refreshTTL),
	}, nil
}

// Validate reports whether accessToken is acceptable and returns its claims.
// It never returns claims of a rejected token.
func (j *JWT) Validate(accessToken string) (model.CarrierClaims, bool) {
	claims, err := j.Parse(accessToken)
	if err != nil {
		return model.CarrierClaims{}, false
	}
	return claims, true
}

// Parse verifies accessToken and returns its claims, or the reason it was
// rejected: ErrAlgorithmMismatch, ErrTokenExpired or ErrInvalidToken.
func (j *JWT) Parse(accessToken string) (model.CarrierClaims, error) {
	if strings.TrimSpace(accessToken) == "" {
		return model.CarrierClaims{}, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, j.keyFunc, j.parserOptions()...)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlgorithmMismatch):
			return model.CarrierClaims{}, ErrAlgorithmMismatch
		case errors.Is(err, jwt.ErrTokenExpired):
			return model.CarrierClaims{}, ErrTokenExpired
		default:
			return model.CarrierClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
	}
	if !token.Valid {
		return model.CarrierClaims{}, ErrInvalidToken
	}
	// The key function already refused other algorithms; check the parsed
	// header again so a permissive parser change cannot downgrade us.
	if token.Method.Alg() != signingMethod.Alg() || token.Header["alg"] != signingMethod.Alg() {
		return model.CarrierClaims{}, ErrAlgorithmMismatch
	}

	return claims.toModel(), nil
}

func (j *JWT) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != signingMethod.Alg() {
		return nil, fmt.Errorf("%w: %v", ErrAlgorithmMismatch, t.Header["alg"])
	}
	return j.signingKey, nil
}

func (j *JWT) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	if j.audience != "" {
		opts = append(opts, jwt.WithAudience(j.audience))
	}
	return opts
}

func (c *Claims) toModel() model.CarrierClaims {
	out := model.CarrierClaims{
		ID:       c.ID,
		Subject:  c.Subject,
		Payload:  c.PayloadHash,
		Issuer:   c.Issuer,
		Audience: []string(c.Audience),
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out
}

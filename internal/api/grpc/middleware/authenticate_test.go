package middleware

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/apiauth-server/internal/authn"
	"github.com/dtroode/apiauth-server/internal/mocks"
	"github.com/dtroode/apiauth-server/internal/model"
	"github.com/dtroode/apiauth-server/internal/opaque"
	"github.com/dtroode/apiauth-server/internal/testutil"
)

type authenticatorFunc func(ctx context.Context, header string) (context.Context, authn.Result)

func (f authenticatorFunc) Authenticate(ctx context.Context, header string) (context.Context, authn.Result) {
	return f(ctx, header)
}

func TestAuthenticate_AuthFunc(t *testing.T) {
	t.Parallel()

	principal := model.Principal{UserID: uuid.New(), TokenID: uuid.New()}
	token := opaque.New(principal.TokenID)

	tests := []struct {
		name         string
		mdAuthHeader string
		result       authn.Result
		wantCode     codes.Code
	}{
		{
			name:     "missing authorization header",
			result:   authn.NoResult(),
			wantCode: codes.Unauthenticated,
		},
		{
			name:         "invalid carrier",
			mdAuthHeader: "Bearer invalid",
			result:       authn.NoResult(),
			wantCode:     codes.Unauthenticated,
		},
		{
			name:         "malformed payload",
			mdAuthHeader: "Bearer token",
			result:       authn.Fail(authn.OutcomeMalformedPayload, opaque.Token{}, authn.ErrMalformedPayload),
			wantCode:     codes.Unauthenticated,
		},
		{
			name:         "revoked token",
			mdAuthHeader: "Bearer token",
			result:       authn.Fail(authn.OutcomeUnknownToken, token, authn.ErrUnknownToken),
			wantCode:     codes.Unauthenticated,
		},
		{
			name:         "valid token",
			mdAuthHeader: "Bearer token",
			result:       authn.Success(principal, token),
			wantCode:     codes.OK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cm := mocks.NewContextManager(t)
			if tt.wantCode == codes.OK {
				cm.On("SetPrincipalToContext", mock.Anything, principal).Return(context.Background()).Once()
			}

			var gotHeader string
			auth := authenticatorFunc(func(ctx context.Context, header string) (context.Context, authn.Result) {
				gotHeader = header
				return ctx, tt.result
			})

			ctx := context.Background()
			if tt.mdAuthHeader != "" {
				ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", tt.mdAuthHeader))
			}

			m := NewAuthenticate(auth, cm, testutil.MakeNoopLogger())
			out, err := m.AuthFunc(ctx)

			assert.Equal(t, tt.mdAuthHeader, gotHeader)
			if tt.wantCode == codes.OK {
				assert.NoError(t, err)
				assert.NotNil(t, out)
				return
			}

			assert.Nil(t, out)
			st, ok := status.FromError(err)
			assert.True(t, ok)
			assert.Equal(t, tt.wantCode, st.Code())
			assert.Equal(t, unauthenticatedMessage, st.Message())
		})
	}
}

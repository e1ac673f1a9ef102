package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/apiauth-server/internal/codec"
	"github.com/dtroode/apiauth-server/internal/mocks"
	"github.com/dtroode/apiauth-server/internal/model"
	"github.com/dtroode/apiauth-server/internal/opaque"
	"github.com/dtroode/apiauth-server/internal/testutil"
)

var testNow = time.Unix(1_700_000_000, 0)

func newCodec(t *testing.T) *opaque.Codec {
	t.Helper()
	c, err := opaque.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return c
}

func newService(t *testing.T, manager model.CarrierManager, sealer PayloadSealer, store model.TokenRecordStore) *TokenService {
	t.Helper()
	s := NewTokenService(manager, sealer, store, testutil.MakeNoopLogger())
	s.now = func() time.Time { return testNow }
	return s
}

func carrierTokens(access, refresh string) model.CarrierTokens {
	return model.CarrierTokens{
		AccessToken:      access,
		AccessExpiresAt:  testNow.Add(15 * time.Minute),
		RefreshToken:     refresh,
		RefreshExpiresAt: testNow.Add(24 * time.Hour),
	}
}

func sha(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

type failingSealer struct{}

func (failingSealer) Serialize(opaque.Token) (string, bool) { return "", false }

func TestTokenService_Issue(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	payloads := newCodec(t)

	manager := mocks.NewCarrierManager(t)
	store := mocks.NewTokenRecordStore(t)

	var subject, payload string
	manager.On("Generate", mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			subject = args.String(0)
			payload = args.String(1)
		}).
		Return(carrierTokens("access", "refresh"), nil).Once()

	var stored model.TokenRecord
	store.On("Insert", ctx, mock.AnythingOfType("model.TokenRecord")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(model.TokenRecord) }).
		Return(nil).Once()

	svc := newService(t, manager, payloads, store)

	issued, err := svc.Issue(ctx, userID)
	require.NoError(t, err)

	assert.Equal(t, "access", issued.AccessToken)
	assert.Equal(t, "refresh", issued.RefreshToken)
	assert.Equal(t, testNow.Add(24*time.Hour), issued.RefreshExpiresAt)

	// The carrier subject and the sealed payload both name the new record.
	assert.Equal(t, codec.ShortID(issued.TokenID), subject)
	opened, ok := payloads.Parse(payload)
	require.True(t, ok)
	assert.Equal(t, issued.TokenID, opened.ID)

	assert.Equal(t, issued.TokenID, stored.ID)
	assert.Equal(t, userID, stored.OwnerID)
	assert.Equal(t, uuid.Nil, stored.ReservedID)
	assert.Equal(t, "access", stored.AccessToken)
	assert.Equal(t, sha("refresh"), stored.RefreshTokenHash)
	assert.Equal(t, testNow, stored.CreatedAt)
}

func TestTokenService_Issue_UniqueTokenIDs(t *testing.T) {
	ctx := context.Background()

	manager := mocks.NewCarrierManager(t)
	store := mocks.NewTokenRecordStore(t)

	manager.On("Generate", mock.Anything, mock.Anything).Return(carrierTokens("a", "r"), nil)
	store.On("Insert", ctx, mock.Anything).Return(nil)

	svc := newService(t, manager, newCodec(t), store)

	seen := make(map[uuid.UUID]struct{})
	for i := 0; i < 100; i++ {
		issued, err := svc.Issue(ctx, uuid.New())
		require.NoError(t, err)
		_, dup := seen[issued.TokenID]
		require.False(t, dup)
		seen[issued.TokenID] = struct{}{}
	}
}

func TestTokenService_Issue_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("seal failure", func(t *testing.T) {
		manager := mocks.NewCarrierManager(t)
		store := mocks.NewTokenRecordStore(t)
		svc := newService(t, manager, failingSealer{}, store)

		_, err := svc.Issue(ctx, uuid.New())
		require.ErrorIs(t, err, model.ErrPayloadSeal)
	})

	t.Run("carrier failure", func(t *testing.T) {
		manager := mocks.NewCarrierManager(t)
		store := mocks.NewTokenRecordStore(t)
		manager.On("Generate", mock.Anything, mock.Anything).Return(model.CarrierTokens{}, assert.AnError).Once()
		svc := newService(t, manager, newCodec(t), store)

		_, err := svc.Issue(ctx, uuid.New())
		require.ErrorIs(t, err, assert.AnError)
	})

	t.Run("store failure", func(t *testing.T) {
		manager := mocks.NewCarrierManager(t)
		store := mocks.NewTokenRecordStore(t)
		manager.On("Generate", mock.Anything, mock.Anything).Return(carrierTokens("a", "r"), nil).Once()
		store.On("Insert", ctx, mock.Anything).Return(assert.AnError).Once()
		svc := newService(t, manager, newCodec(t), store)

		_, err := svc.Issue(ctx, uuid.New())
		require.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "persist token record")
	})
}

func TestTokenService_Refresh_Success(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	oldID := uuid.New()
	presented := "refresh-old"

	manager := mocks.NewCarrierManager(t)
	store := mocks.NewTokenRecordStore(t)

	store.On("FindByRefreshHash", ctx, sha(presented)).Return(model.TokenRecord{
		ID:               oldID,
		OwnerID:          userID,
		RefreshTokenHash: sha(presented),
		RefreshExpiresAt: testNow.Add(time.Hour),
	}, nil).Once()
	store.On("Delete", ctx, oldID).Return(nil).Once()
	manager.On("Generate", mock.Anything, mock.Anything).Return(carrierTokens("access-new", "refresh-new"), nil).Once()
	store.On("Insert", ctx, mock.MatchedBy(func(r model.TokenRecord) bool {
		return r.OwnerID == userID && r.ID != oldID && r.RefreshTokenHash == sha("refresh-new")
	})).Return(nil).Once()

	svc := newService(t, manager, newCodec(t), store)

	issued, err := svc.Refresh(ctx, "  "+presented+"\n")
	require.NoError(t, err)
	assert.Equal(t, "access-new", issued.AccessToken)
	assert.Equal(t, "refresh-new", issued.RefreshToken)
	assert.NotEqual(t, oldID, issued.TokenID)
}

func TestTokenService_Refresh_Rejections(t *testing.T) {
	ctx := context.Background()
	presented := "refresh-old"

	tests := []struct {
		name    string
		record  model.TokenRecord
		findErr error
		wantErr error
	}{
		{
			name:    "unknown refresh token",
			findErr: model.ErrNotFound,
			wantErr: model.ErrNotFound,
		},
		{
			name: "expired exactly now",
			record: model.TokenRecord{
				ID:               uuid.New(),
				RefreshTokenHash: sha(presented),
				RefreshExpiresAt: testNow,
			},
			wantErr: model.ErrTokenExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := mocks.NewCarrierManager(t)
			store := mocks.NewTokenRecordStore(t)
			store.On("FindByRefreshHash", ctx, sha(presented)).Return(tt.record, tt.findErr).Once()

			svc := newService(t, manager, newCodec(t), store)

			_, err := svc.Refresh(ctx, presented)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTokenService_Refresh_Empty(t *testing.T) {
	svc := newService(t, mocks.NewCarrierManager(t), newCodec(t), mocks.NewTokenRecordStore(t))

	_, err := svc.Refresh(context.Background(), "   ")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestTokenService_Refresh_LostRace(t *testing.T) {
	ctx := context.Background()
	presented := "refresh-old"
	record := model.TokenRecord{
		ID:               uuid.New(),
		OwnerID:          uuid.New(),
		RefreshTokenHash: sha(presented),
		RefreshExpiresAt: testNow.Add(time.Hour),
	}

	manager := mocks.NewCarrierManager(t)
	store := mocks.NewTokenRecordStore(t)
	store.On("FindByRefreshHash", ctx, sha(presented)).Return(record, nil).Once()
	manager.On("Generate", mock.Anything, mock.Anything).Return(carrierTokens("access-new", "refresh-new"), nil).Once()

	var newID uuid.UUID
	store.On("Insert", ctx, mock.AnythingOfType("model.TokenRecord")).
		Run(func(args mock.Arguments) { newID = args.Get(1).(model.TokenRecord).ID }).
		Return(nil).Once()
	store.On("Delete", ctx, record.ID).Return(model.ErrNotFound).Once()
	store.On("Delete", ctx, mock.MatchedBy(func(id uuid.UUID) bool { return id != record.ID })).Return(nil).Once()

	svc := newService(t, manager, newCodec(t), store)

	_, err := svc.Refresh(ctx, presented)
	require.ErrorIs(t, err, model.ErrNotFound)
	store.AssertCalled(t, "Delete", ctx, newID)
}

func TestTokenService_Refresh_IssueFailureKeepsGrant(t *testing.T) {
	ctx := context.Background()
	presented := "refresh-old"
	record := model.TokenRecord{
		ID:               uuid.New(),
		OwnerID:          uuid.New(),
		RefreshTokenHash: sha(presented),
		RefreshExpiresAt: testNow.Add(time.Hour),
	}

	manager := mocks.NewCarrierManager(t)
	store := mocks.NewTokenRecordStore(t)
	store.On("FindByRefreshHash", ctx, sha(presented)).Return(record, nil).Once()
	manager.On("Generate", mock.Anything, mock.Anything).Return(carrierTokens("access-new", "refresh-new"), nil).Once()
	store.On("Insert", ctx, mock.AnythingOfType("model.TokenRecord")).Return(assert.AnError).Once()

	svc := newService(t, manager, newCodec(t), store)

	_, err := svc.Refresh(ctx, presented)
	require.ErrorIs(t, err, assert.AnError)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestTokenService_Refresh_RevokeFailureDiscardsNewGrant(t *testing.T) {
	ctx := context.Background()
	presented := "refresh-old"
	record := model.TokenRecord{
		ID:               uuid.New(),
		OwnerID:          uuid.New(),
		RefreshTokenHash: sha(presented),
		RefreshExpiresAt: testNow.Add(time.Hour),
	}

	manager := mocks.NewCarrierManager(t)
	store := mocks.NewTokenRecordStore(t)
	store.On("FindByRefreshHash", ctx, sha(presented)).Return(record, nil).Once()
	manager.On("Generate", mock.Anything, mock.Anything).Return(carrierTokens("access-new", "refresh-new"), nil).Once()

	var newID uuid.UUID
	store.On("Insert", ctx, mock.AnythingOfType("model.TokenRecord")).
		Run(func(args mock.Arguments) { newID = args.Get(1).(model.TokenRecord).ID }).
		Return(nil).Once()
	store.On("Delete", ctx, record.ID).Return(errors.New("db down")).Once()
	store.On("Delete", ctx, mock.MatchedBy(func(id uuid.UUID) bool { return id != record.ID })).Return(nil).Once()

	svc := newService(t, manager, newCodec(t), store)

	_, err := svc.Refresh(ctx, presented)
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrNotFound)
	assert.Contains(t, err.Error(), "revoke rotated token")
	store.AssertCalled(t, "Delete", ctx, newID)
}

func TestTokenService_Revoke(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	store := mocks.NewTokenRecordStore(t)
	store.On("Delete", ctx, id).Return(nil).Once()

	svc := newService(t, mocks.NewCarrierManager(t), newCodec(t), store)
	require.NoError(t, svc.Revoke(ctx, id))
}

func TestTokenService_RevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	store := mocks.NewTokenRecordStore(t)
	store.On("DeleteByOwner", ctx, userID).Return(int64(3), nil).Once()

	svc := newService(t, mocks.NewCarrierManager(t), newCodec(t), store)

	n, err := svc.RevokeAllForUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestTokenService_PurgeExpired(t *testing.T) {
	ctx := context.Background()

	store := mocks.NewTokenRecordStore(t)
	store.On("DeleteExpired", ctx, testNow).Return(int64(2), nil).Once()

	svc := newService(t, mocks.NewCarrierManager(t), newCodec(t), store)

	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	store.On("DeleteExpired", ctx, testNow).Return(int64(0), errors.New("db down")).Once()
	_, err = svc.PurgeExpired(ctx)
	require.Error(t, err)
}

func TestTokenService_RunJanitor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := make(chan struct{}, 10)
	store := mocks.NewTokenRecordStore(t)
	store.On("DeleteExpired", ctx, testNow).
		Run(func(mock.Arguments) {
			select {
			case calls <- struct{}{}:
			default:
			}
		}).
		Return(int64(1), nil)

	svc := newService(t, mocks.NewCarrierManager(t), newCodec(t), store)

	done := make(chan struct{})
	go func() {
		svc.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not run")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

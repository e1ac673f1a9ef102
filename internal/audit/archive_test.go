package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/apiauth-server/internal/authn"
	"github.com/dtroode/apiauth-server/internal/codec"
	"github.com/dtroode/apiauth-server/internal/mocks"
	"github.com/dtroode/apiauth-server/internal/model"
	"github.com/dtroode/apiauth-server/internal/opaque"
	"github.com/dtroode/apiauth-server/internal/testutil"
)

var keyPattern = regexp.MustCompile(`^audit/2030/01/02/\d+-[0-9a-v]+\.ndjson$`)

func fixedNow() time.Time {
	return time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
}

type upload struct {
	key    string
	events []Event
}

// captureUploads decodes every uploaded object.
func captureUploads(t *testing.T, storage *mocks.Storage) func() []upload {
	t.Helper()

	var mu sync.Mutex
	var uploads []upload
	storage.On("Upload", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			data, err := io.ReadAll(args.Get(2).(io.Reader))
			require.NoError(t, err)

			var events []Event
			scanner := bufio.NewScanner(bytes.NewReader(data))
			for scanner.Scan() {
				var e Event
				require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
				events = append(events, e)
			}

			mu.Lock()
			uploads = append(uploads, upload{key: args.String(1), events: events})
			mu.Unlock()
		}).
		Return(nil)

	return func() []upload {
		mu.Lock()
		defer mu.Unlock()
		return append([]upload(nil), uploads...)
	}
}

func newTestArchive(t *testing.T, storage *mocks.Storage, batchSize int) *Archive {
	t.Helper()

	a := NewArchive(storage, batchSize, testutil.MakeNoopLogger())
	a.now = fixedNow
	return a
}

func TestNewArchive_DefaultBatchSize(t *testing.T) {
	t.Parallel()

	a := NewArchive(mocks.NewStorage(t), 0, testutil.MakeNoopLogger())
	assert.Equal(t, DefaultBatchSize, a.batchSize)
}

func TestArchive_Record(t *testing.T) {
	t.Parallel()

	principal := model.Principal{UserID: uuid.New(), TokenID: uuid.New()}
	token := opaque.New(principal.TokenID)

	tests := []struct {
		name   string
		result authn.Result
		want   *Event
	}{
		{
			name:   "no credential is skipped",
			result: authn.NoResult(),
		},
		{
			name:   "success",
			result: authn.Success(principal, token),
			want: &Event{
				Time:    fixedNow(),
				Outcome: "success",
				TokenID: codec.ShortID(principal.TokenID),
				UserID:  principal.UserID.String(),
			},
		},
		{
			name:   "unknown token",
			result: authn.Fail(authn.OutcomeUnknownToken, token, authn.ErrUnknownToken),
			want: &Event{
				Time:    fixedNow(),
				Outcome: "unknown_token",
				TokenID: codec.ShortID(principal.TokenID),
				Reason:  authn.ErrUnknownToken.Error(),
			},
		},
		{
			name:   "malformed payload",
			result: authn.Fail(authn.OutcomeMalformedPayload, opaque.Token{}, authn.ErrMalformedPayload),
			want: &Event{
				Time:    fixedNow(),
				Outcome: "malformed_payload",
				Reason:  authn.ErrMalformedPayload.Error(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := newTestArchive(t, mocks.NewStorage(t), 10)
			a.Record(context.Background(), tt.result)

			if tt.want == nil {
				assert.Equal(t, 0, a.Pending())
				return
			}
			require.Equal(t, 1, a.Pending())
			assert.Equal(t, *tt.want, a.events[0])
		})
	}
}

func TestArchive_Flush(t *testing.T) {
	t.Parallel()

	storage := mocks.NewStorage(t)
	uploads := captureUploads(t, storage)

	a := newTestArchive(t, storage, 10)
	principal := model.Principal{UserID: uuid.New(), TokenID: uuid.New()}
	a.Record(context.Background(), authn.Success(principal, opaque.New(principal.TokenID)))
	a.Record(context.Background(), authn.Fail(authn.OutcomeLookupFailed, opaque.New(principal.TokenID), authn.ErrLookupFailed))

	require.NoError(t, a.Flush(context.Background()))
	assert.Equal(t, 0, a.Pending())

	got := uploads()
	require.Len(t, got, 1)
	assert.Regexp(t, keyPattern, got[0].key)
	require.Len(t, got[0].events, 2)
	assert.Equal(t, "success", got[0].events[0].Outcome)
	assert.Equal(t, "lookup_failed", got[0].events[1].Outcome)
}

func TestArchive_Flush_Empty(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, mocks.NewStorage(t), 10)
	assert.NoError(t, a.Flush(context.Background()))
}

func TestArchive_Flush_UploadFailureRequeues(t *testing.T) {
	t.Parallel()

	storage := mocks.NewStorage(t)
	storage.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	a := newTestArchive(t, storage, 10)
	token := opaque.Issue()
	a.Record(context.Background(), authn.Fail(authn.OutcomeUnknownToken, token, authn.ErrUnknownToken))

	err := a.Flush(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, a.Pending())

	uploads := captureUploads(t, storage)
	require.NoError(t, a.Flush(context.Background()))
	require.Len(t, uploads(), 1)
	assert.Equal(t, codec.ShortID(token.ID), uploads()[0].events[0].TokenID)
}

func TestArchive_RequeueIsBounded(t *testing.T) {
	t.Parallel()

	storage := mocks.NewStorage(t)
	storage.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	a := newTestArchive(t, storage, 1)
	for i := 0; i < maxBufferedBatches+5; i++ {
		a.Record(context.Background(), authn.Fail(authn.OutcomeUnknownToken, opaque.Issue(), authn.ErrUnknownToken))
		_ = a.Flush(context.Background())
	}

	assert.Equal(t, maxBufferedBatches, a.Pending())
}

func TestArchive_Run_FlushesFullBatchEarly(t *testing.T) {
	t.Parallel()

	storage := mocks.NewStorage(t)
	uploads := captureUploads(t, storage)

	a := newTestArchive(t, storage, 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, time.Hour)
		close(done)
	}()

	a.Record(context.Background(), authn.Success(model.Principal{UserID: uuid.New(), TokenID: uuid.New()}, opaque.Issue()))
	a.Record(context.Background(), authn.Success(model.Principal{UserID: uuid.New(), TokenID: uuid.New()}, opaque.Issue()))

	assert.Eventually(t, func() bool { return len(uploads()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Len(t, uploads(), 1)
}

func TestArchive_Run_FinalFlush(t *testing.T) {
	t.Parallel()

	storage := mocks.NewStorage(t)
	uploads := captureUploads(t, storage)

	a := newTestArchive(t, storage, 100)
	a.Record(context.Background(), authn.Fail(authn.OutcomeUnknownToken, opaque.Issue(), authn.ErrUnknownToken))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a.Run(ctx, time.Hour)

	require.Len(t, uploads(), 1)
	assert.Equal(t, 0, a.Pending())
}

func TestObjectKey(t *testing.T) {
	t.Parallel()

	first := objectKey(fixedNow())
	second := objectKey(fixedNow())
	assert.Regexp(t, keyPattern, first)
	assert.NotEqual(t, first, second)
}

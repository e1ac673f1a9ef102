// Package audit keeps a trail of authentication attempts and archives it to
// object storage as newline delimited JSON.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/apiauth-server/internal/authn"
	"github.com/dtroode/apiauth-server/internal/codec"
	"github.com/dtroode/apiauth-server/internal/logger"
	"github.com/dtroode/apiauth-server/internal/model"
)

const (
	// DefaultBatchSize is used when a non-positive batch size is configured.
	DefaultBatchSize = 500

	// maxBufferedBatches bounds memory while storage is unavailable.
	maxBufferedBatches = 10

	shutdownFlushTimeout = 5 * time.Second
)

// Event is one archived authentication attempt.
type Event struct {
	Time    time.Time `json:"time"`
	Outcome string    `json:"outcome"`
	TokenID string    `json:"token_id,omitempty"`
	UserID  string    `json:"user_id,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// Archive buffers authentication events and uploads them in batches.
// Requests without any credential are not recorded.
type Archive struct {
	storage   model.Storage
	logger    *logger.Logger
	batchSize int
	now       func() time.Time

	mu     sync.Mutex
	events []Event

	full chan struct{}
}

var _ authn.Recorder = (*Archive)(nil)

// NewArchive creates an Archive writing to storage.
func NewArchive(storage model.Storage, batchSize int, logger *logger.Logger) *Archive {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Archive{
		storage:   storage,
		logger:    logger,
		batchSize: batchSize,
		now:       time.Now,
		events:    make([]Event, 0, batchSize),
		full:      make(chan struct{}, 1),
	}
}

// Record queues the outcome of an authentication attempt. It never blocks on
// storage.
func (a *Archive) Record(_ context.Context, result authn.Result) {
	if result.Outcome() == authn.OutcomeNoCredential {
		return
	}

	event := Event{
		Time:    a.now().UTC(),
		Outcome: result.Outcome().String(),
	}
	if token, ok := result.Token(); ok {
		event.TokenID = codec.ShortID(token.ID)
	}
	if principal, ok := result.Principal(); ok {
		event.UserID = principal.UserID.String()
	}
	if err := result.Err(); err != nil {
		event.Reason = err.Error()
	}

	a.mu.Lock()
	a.events = append(a.events, event)
	full := len(a.events) >= a.batchSize
	a.mu.Unlock()

	if full {
		select {
		case a.full <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of events waiting to be archived.
func (a *Archive) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.events)
}

// Flush uploads every buffered event as one object. On failure the events
// are put back so the next flush retries them.
func (a *Archive) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.events
	a.events = make([]Event, 0, a.batchSize)
	a.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, event := range batch {
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("failed to encode audit event: %w", err)
		}
	}

	key := objectKey(a.now())
	if err := a.storage.Upload(ctx, key, bytes.NewReader(buf.Bytes())); err != nil {
		a.requeue(batch)
		return fmt.Errorf("failed to upload audit batch: %w", err)
	}

	a.logger.Debug("Audit: batch archived", "key", key, "events", len(batch))
	return nil
}

func (a *Archive) requeue(batch []Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	merged := append(batch, a.events...)
	if limit := a.batchSize * maxBufferedBatches; len(merged) > limit {
		dropped := len(merged) - limit
		merged = merged[dropped:]
		a.logger.Warn("Audit: buffer full, dropping oldest events", "dropped", dropped)
	}
	a.events = merged
}

// Run flushes every interval and whenever a batch fills up. When ctx ends
// the remaining events are flushed once more before Run returns.
func (a *Archive) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			if err := a.Flush(flushCtx); err != nil {
				a.logger.Error("Audit: final flush failed", "error", err.Error())
			}
			cancel()
			return
		case <-ticker.C:
		case <-a.full:
		}

		if err := a.Flush(ctx); err != nil {
			a.logger.Error("Audit: flush failed", "error", err.Error())
		}
	}
}

// objectKey lays batches out by day: audit/YYYY/MM/DD/<unix-nanos>-<id>.ndjson.
func objectKey(at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("audit/%04d/%02d/%02d/%d-%s.ndjson",
		at.Year(), at.Month(), at.Day(), at.UnixNano(), codec.ShortID(uuid.New()))
}

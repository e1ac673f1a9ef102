// Package memory provides an in-process token record store for tests and
// single-node development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/apiauth-server/internal/model"
)

// TokenRecordRepository keeps token records in maps guarded by a RWMutex.
type TokenRecordRepository struct {
	mu        sync.RWMutex
	records   map[uuid.UUID]model.TokenRecord
	byRefresh map[string]uuid.UUID
}

var _ model.TokenRecordStore = (*TokenRecordRepository)(nil)

func NewTokenRecordRepository() *TokenRecordRepository {
	return &TokenRecordRepository{
		records:   make(map[uuid.UUID]model.TokenRecord),
		byRefresh: make(map[string]uuid.UUID),
	}
}

func (r *TokenRecordRepository) Insert(_ context.Context, record model.TokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[record.ID]; ok {
		return model.ErrAlreadyExists
	}
	if _, ok := r.byRefresh[record.RefreshTokenHash]; ok {
		return model.ErrAlreadyExists
	}

	r.records[record.ID] = record
	r.byRefresh[record.RefreshTokenHash] = record.ID
	return nil
}

func (r *TokenRecordRepository) FindByID(_ context.Context, id uuid.UUID) (model.TokenRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	if !ok {
		return model.TokenRecord{}, model.ErrNotFound
	}
	return record, nil
}

func (r *TokenRecordRepository) FindByRefreshHash(_ context.Context, hash string) (model.TokenRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byRefresh[hash]
	if !ok {
		return model.TokenRecord{}, model.ErrNotFound
	}
	return r.records[id], nil
}

func (r *TokenRecordRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return model.ErrNotFound
	}
	r.remove(record)
	return nil
}

func (r *TokenRecordRepository) DeleteByOwner(_ context.Context, ownerID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, record := range r.records {
		if record.OwnerID == ownerID {
			r.remove(record)
			n++
		}
	}
	return n, nil
}

func (r *TokenRecordRepository) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, record := range r.records {
		if !now.Before(record.RefreshExpiresAt) {
			r.remove(record)
			n++
		}
	}
	return n, nil
}

// remove must be called with mu held.
func (r *TokenRecordRepository) remove(record model.TokenRecord) {
	delete(r.records, record.ID)
	delete(r.byRefresh, record.RefreshTokenHash)
}

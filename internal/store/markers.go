// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/worldmap/internal/models"
)

// lockStripes bounds the per-id lock table. Two ids sharing a stripe also
// serialize, which is harmless.
const lockStripes = 64

// MarkerStore is the authoritative id -> Marker mapping.
//
// Every write is a single badger transaction. Updates to the same id are
// serialized by a striped mutex so read-modify-write cannot interleave; the
// last update to acquire the lock wins and gets the highest Version.
type MarkerStore struct {
	db    *DB
	locks [lockStripes]sync.Mutex
	now   func() time.Time
}

// MarkerOption configures a MarkerStore.
type MarkerOption func(*MarkerStore)

// WithClock overrides time.Now for created_at and updated_at.
func WithClock(now func() time.Time) MarkerOption {
	return func(s *MarkerStore) { s.now = now }
}

// NewMarkerStore creates a marker store on db.
func NewMarkerStore(db *DB, opts ...MarkerOption) *MarkerStore {
	s := &MarkerStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func markerKey(id uint64) []byte {
	key := make([]byte, len(markerKeyPrefix)+8)
	copy(key, markerKeyPrefix)
	binary.BigEndian.PutUint64(key[len(markerKeyPrefix):], id)
	return key
}

func (s *MarkerStore) lockFor(id uint64) *sync.Mutex {
	return &s.locks[id%lockStripes]
}

// Create validates fields, assigns an id and created_at, and persists the
// marker with Version 1.
func (s *MarkerStore) Create(ctx context.Context, fields models.MarkerFields) (models.Marker, error) {
	if err := ctx.Err(); err != nil {
		return models.Marker{}, err
	}

	now := s.now().UTC()
	m := models.Marker{
		Title:       fields.Title,
		Description: fields.Description,
		Lat:         fields.Lat,
		Lng:         fields.Lng,
		UserID:      fields.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	if err := models.ValidateMarker(&m); err != nil {
		return models.Marker{}, err
	}

	id, err := s.db.nextMarkerID()
	if err != nil {
		return models.Marker{}, err
	}
	m.ID = id

	data, err := json.Marshal(&m)
	if err != nil {
		return models.Marker{}, fmt.Errorf("marshal marker: %w", err)
	}
	err = s.db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(markerKey(id), data)
	})
	if err != nil {
		return models.Marker{}, fmt.Errorf("create marker %d: %w", id, err)
	}
	return m, nil
}

// Update applies patch to marker id and bumps its Version.
func (s *MarkerStore) Update(ctx context.Context, id uint64, patch models.MarkerPatch) (models.Marker, error) {
	if err := ctx.Err(); err != nil {
		return models.Marker{}, err
	}

	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	var m models.Marker
	err := s.db.db.Update(func(txn *badger.Txn) error {
		if err := getMarker(txn, id, &m); err != nil {
			return err
		}
		patch.Apply(&m)
		if err := models.ValidateMarker(&m); err != nil {
			return err
		}
		m.Version++
		m.UpdatedAt = s.now().UTC()

		data, err := json.Marshal(&m)
		if err != nil {
			return fmt.Errorf("marshal marker: %w", err)
		}
		return txn.Set(markerKey(id), data)
	})
	if err != nil {
		return models.Marker{}, err
	}
	return m, nil
}

// Get returns marker id or an error wrapping models.ErrNotFound.
func (s *MarkerStore) Get(ctx context.Context, id uint64) (models.Marker, error) {
	if err := ctx.Err(); err != nil {
		return models.Marker{}, err
	}
	var m models.Marker
	err := s.db.db.View(func(txn *badger.Txn) error {
		return getMarker(txn, id, &m)
	})
	if err != nil {
		return models.Marker{}, err
	}
	return m, nil
}

// List returns every marker, newest first.
func (s *MarkerStore) List(ctx context.Context) ([]models.Marker, error) {
	markers := make([]models.Marker, 0)
	err := s.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(markerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var m models.Marker
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return fmt.Errorf("decode marker %x: %w", it.Item().Key(), err)
			}
			markers = append(markers, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	models.SortNewestFirst(markers)
	return markers, nil
}

func getMarker(txn *badger.Txn, id uint64, m *models.Marker) error {
	item, err := txn.Get(markerKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("marker %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get marker %d: %w", id, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, m)
	})
}

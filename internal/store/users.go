// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/worldmap/internal/models"
)

// UserStore keeps registered accounts, unique by email.
type UserStore struct {
	db *DB
}

// NewUserStore creates a user store on db.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create stores a new user and assigns its id. A duplicate email returns an
// error wrapping models.ErrConflict.
func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.ID = uuid.New().String()
	u.Email = normalizeEmail(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	err = s.db.db.Update(func(txn *badger.Txn) error {
		emailKey := []byte(userEmailKeyPrefix + u.Email)
		_, err := txn.Get(emailKey)
		if err == nil {
			return fmt.Errorf("email %s: %w", u.Email, models.ErrConflict)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("lookup email: %w", err)
		}
		if err := txn.Set([]byte(userKeyPrefix+u.ID), data); err != nil {
			return fmt.Errorf("set user: %w", err)
		}
		return txn.Set(emailKey, []byte(u.ID))
	})
	// Two concurrent registrations of one email collide at commit.
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("email %s: %w", u.Email, models.ErrConflict)
	}
	return err
}

// GetByEmail looks up a user by email, case-insensitively.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var u models.User
	err := s.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userEmailKeyPrefix + normalizeEmail(email)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("user %s: %w", email, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lookup email: %w", err)
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getUser(txn, string(id), &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Get looks up a user by id.
func (s *UserStore) Get(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var u models.User
	err := s.db.db.View(func(txn *badger.Txn) error {
		return getUser(txn, id, &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func getUser(txn *badger.Txn, id string, u *models.User) error {
	item, err := txn.Get([]byte(userKeyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("user %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, u)
	})
}

// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

// Package store persists markers and users in BadgerDB.
//
// Keys are namespaced by prefix:
//
//	marker:<8-byte big-endian id>  -> JSON models.Marker
//	user:<uuid>                    -> JSON models.User
//	user_email:<lowercased email>  -> user id
//	seq:marker                     -> badger sequence for marker ids
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/worldmap/internal/logging"
)

const (
	markerKeyPrefix    = "marker:"
	userKeyPrefix      = "user:"
	userEmailKeyPrefix = "user_email:"
	markerSequenceKey  = "seq:marker"

	// sequenceBandwidth ids are leased per disk write. Unused leased ids are
	// skipped after a restart, so ids stay unique and increasing.
	sequenceBandwidth = 100
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Options configures Open.
type Options struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM; used by tests and DB_IN_MEMORY=true.
	InMemory bool
}

// DB owns the badger handle and the marker id sequence.
type DB struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Open opens (or creates) the badger database.
func Open(opts Options) (*DB, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	seq, err := db.GetSequence([]byte(markerSequenceKey), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("marker id sequence: %w", err)
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Msg("Marker store opened")

	return &DB{db: db, seq: seq}, nil
}

// Close releases the sequence lease and closes badger.
func (d *DB) Close() error {
	var errs []error
	if err := d.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := d.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close badger db: %w", err))
	}
	return errors.Join(errs...)
}

// Ping reports whether the store is usable. Used by the readiness probe.
func (d *DB) Ping(_ context.Context) error {
	if d.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// nextMarkerID returns the next id. Badger sequences start at zero and
// marker ids start at one.
func (d *DB) nextMarkerID() (uint64, error) {
	n, err := d.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next marker id: %w", err)
	}
	return n + 1, nil
}

// GCService periodically reclaims space from badger's value log. It
// implements suture.Service.
type GCService struct {
	db       *DB
	interval time.Duration
}

// NewGCService creates a value log GC loop.
func NewGCService(db *DB, interval time.Duration) *GCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &GCService{db: db, interval: interval}
}

// Serve runs until ctx is cancelled.
func (s *GCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.collect()
		}
	}
}

func (s *GCService) collect() {
	for {
		err := s.db.db.RunValueLogGC(0.5)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrGCInMemoryMode) {
			logging.Warn().Err(err).Msg("Value log GC failed")
		}
		return
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *GCService) String() string {
	return "store-gc"
}

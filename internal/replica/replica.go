// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

// Package replica holds a client's view of the marker set. It is
// bootstrapped from a bulk fetch and then kept current by realtime change
// events. The replica is eventually consistent with the store: events are
// applied in receipt order and a reconnect re-bootstraps from scratch.
package replica

import (
	"sync"

	"github.com/tomtom215/worldmap/internal/models"
)

// ChangeHandler is called after every change with the number of markers now
// held. Handlers run on the goroutine that made the change and must not call
// back into Subscribe or Cancel.
type ChangeHandler func(size int)

// Replica is an id to Marker map safe for concurrent use.
type Replica struct {
	mu      sync.RWMutex
	markers map[uint64]models.Marker

	hmu      sync.Mutex
	handlers []*Subscription
}

// New creates an empty replica.
func New() *Replica {
	return &Replica{markers: make(map[uint64]models.Marker)}
}

// Subscription is a registered change handler.
type Subscription struct {
	fn      ChangeHandler
	replica *Replica
	once    sync.Once
}

// Cancel unregisters the handler. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		r := s.replica
		r.hmu.Lock()
		defer r.hmu.Unlock()
		for i, h := range r.handlers {
			if h == s {
				r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
				return
			}
		}
	})
}

// Subscribe registers fn. Handlers fire in registration order.
func (r *Replica) Subscribe(fn ChangeHandler) *Subscription {
	r.hmu.Lock()
	defer r.hmu.Unlock()
	sub := &Subscription{fn: fn, replica: r}
	r.handlers = append(r.handlers, sub)
	return sub
}

// Bootstrap replaces the whole replica with markers.
func (r *Replica) Bootstrap(markers []models.Marker) {
	next := make(map[uint64]models.Marker, len(markers))
	for _, m := range markers {
		next[m.ID] = m
	}

	r.mu.Lock()
	r.markers = next
	size := len(next)
	r.mu.Unlock()

	r.notify(size)
}

// ApplyEvent upserts the event's marker. Created and Updated are handled
// identically, so reapplying an event changes nothing. The most recently
// applied event for an id wins.
func (r *Replica) ApplyEvent(event models.ChangeEvent) {
	r.mu.Lock()
	r.markers[event.Marker.ID] = event.Marker
	size := len(r.markers)
	r.mu.Unlock()

	r.notify(size)
}

// Get returns the marker with id.
func (r *Replica) Get(id uint64) (models.Marker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markers[id]
	return m, ok
}

// Len returns the number of markers held.
func (r *Replica) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markers)
}

// Snapshot returns a copy of all markers, newest first.
func (r *Replica) Snapshot() []models.Marker {
	r.mu.RLock()
	out := make([]models.Marker, 0, len(r.markers))
	for _, m := range r.markers {
		out = append(out, m)
	}
	r.mu.RUnlock()

	models.SortNewestFirst(out)
	return out
}

func (r *Replica) notify(size int) {
	r.hmu.Lock()
	handlers := make([]*Subscription, len(r.handlers))
	copy(handlers, r.handlers)
	r.hmu.Unlock()

	for _, h := range handlers {
		h.fn(size)
	}
}

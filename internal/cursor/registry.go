// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cursor implements C9: the per-connection cursor registry. It is
// never shared across connections and therefore needs no lock of its own
// — only the worker goroutine that owns a connection ever touches it.
package cursor

import "github.com/snapwebsites/snapdbproxy/internal/wireerr"

// Query is the minimal driver handle a cursor retains: something that can
// be asked for its next page and released.
type Query interface {
	Fetch() ([][]byte, error)
	Release()
}

// Registry is a vector indexed by cursor identifier: declare appends and
// returns the new index, fetch validates bounds and liveness, close
// releases the query and pops trailing empty slots.
type Registry struct {
	slots []Query // nil slot means "released"
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Declare appends q and returns its cursor identifier, which equals its
// index in the registry.
func (r *Registry) Declare(q Query) uint32 {
	r.slots = append(r.slots, q)
	return uint32(len(r.slots) - 1)
}

// Fetch returns the next page for id, or a lifecycle error if id is out of
// range or was already closed.
func (r *Registry) Fetch(id uint32) ([][]byte, error) {
	q, err := r.live(id)
	if err != nil {
		return nil, err
	}
	return q.Fetch()
}

// Close releases the driver query behind id immediately, then pops any
// trailing released slots so the registry does not grow unboundedly across
// a connection's lifetime.
func (r *Registry) Close(id uint32) error {
	q, err := r.Deactivate(id)
	if err != nil {
		return err
	}
	q.Release()
	return nil
}

// Deactivate marks id closed and pops any trailing released slots, the
// same bookkeeping Close does, but leaves releasing the driver query to
// the caller. A caller that must reply to its client before paying for
// driver-side cleanup calls Deactivate, sends its reply, then releases the
// returned Query itself.
func (r *Registry) Deactivate(id uint32) (Query, error) {
	q, err := r.live(id)
	if err != nil {
		return nil, err
	}
	r.slots[id] = nil

	for len(r.slots) > 0 && r.slots[len(r.slots)-1] == nil {
		r.slots = r.slots[:len(r.slots)-1]
	}
	return q, nil
}

func (r *Registry) live(id uint32) (Query, error) {
	if id >= uint32(len(r.slots)) {
		return nil, wireerr.Lifecycle("unknown cursor identifier")
	}
	q := r.slots[id]
	if q == nil {
		return nil, wireerr.Lifecycle("cursor already closed")
	}
	return q, nil
}

// Len reports the current registry size, mostly useful for tests asserting
// trailing slots were popped.
func (r *Registry) Len() int { return len(r.slots) }

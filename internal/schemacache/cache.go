// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schemacache implements C8: a single process-wide mutex guarding
// one opaque schema blob, lazily populated and coarsely invalidated.
package schemacache

import (
	"sync"

	"github.com/google/uuid"
)

// Builder produces a fresh schema blob by driver introspection. It is
// called at most once between a clear and the next read.
type Builder func() ([]byte, error)

// Cache holds no structured view of the schema: invalidation is coarse
// and always succeeds.
type Cache struct {
	mu         sync.Mutex
	blob       []byte
	generation string
	valid      bool
}

// New returns an empty cache; the first ReadOrBuild call populates it.
func New() *Cache {
	return &Cache{}
}

// ReadOrBuild returns the cached blob, building it with build first if the
// cache is empty or was cleared since the last read.
func (c *Cache) ReadOrBuild(build Builder) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid {
		return c.blob, nil
	}

	blob, err := build()
	if err != nil {
		return nil, err
	}
	c.blob = blob
	c.generation = uuid.NewString()
	c.valid = true
	return c.blob, nil
}

// Clear invalidates the cached blob. The next ReadOrBuild call rebuilds it.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.blob = nil
}

// Generation returns an opaque tag that changes every time the blob is
// rebuilt, useful for callers that want to detect a stale read without
// comparing the (potentially large) blob itself.
func (c *Cache) Generation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

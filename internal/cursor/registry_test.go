// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuery struct {
	pages    [][][]byte
	released bool
}

func (q *fakeQuery) Fetch() ([][]byte, error) {
	if len(q.pages) == 0 {
		return nil, nil
	}
	page := q.pages[0]
	q.pages = q.pages[1:]
	return page, nil
}

func (q *fakeQuery) Release() { q.released = true }

func TestDeclareFetchClose(t *testing.T) {
	r := NewRegistry()
	q := &fakeQuery{pages: [][][]byte{{[]byte("a")}, {[]byte("b")}}}

	id := r.Declare(q)
	assert.Equal(t, uint32(0), id)

	page, err := r.Fetch(id)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a")}, page)

	page, err = r.Fetch(id)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("b")}, page)

	require.NoError(t, r.Close(id))
	assert.True(t, q.released)
	assert.Equal(t, 0, r.Len())
}

func TestFetchAfterCloseIsLifecycleError(t *testing.T) {
	r := NewRegistry()
	id := r.Declare(&fakeQuery{})
	require.NoError(t, r.Close(id))

	_, err := r.Fetch(id)
	require.Error(t, err)
}

func TestFetchUnknownCursorIsLifecycleError(t *testing.T) {
	r := NewRegistry()
	_, err := r.Fetch(42)
	require.Error(t, err)
}

func TestDeactivateLeavesReleaseToCaller(t *testing.T) {
	r := NewRegistry()
	q := &fakeQuery{}
	id := r.Declare(q)

	got, err := r.Deactivate(id)
	require.NoError(t, err)
	assert.Same(t, q, got)
	assert.False(t, q.released, "Deactivate must not release the query itself")
	assert.Equal(t, 0, r.Len())

	_, err = r.Fetch(id)
	require.Error(t, err, "a deactivated cursor is already closed for Fetch")
}

func TestCloseOnlyPopsTrailingReleasedSlots(t *testing.T) {
	r := NewRegistry()
	a := r.Declare(&fakeQuery{})
	b := r.Declare(&fakeQuery{})
	c := r.Declare(&fakeQuery{})

	require.NoError(t, r.Close(b))
	assert.Equal(t, 3, r.Len(), "middle slot stays until trailing slots are released too")

	require.NoError(t, r.Close(c))
	assert.Equal(t, 1, r.Len(), "closing the tail pops both the already-released b and c")

	require.NoError(t, r.Close(a))
	assert.Equal(t, 0, r.Len())
}

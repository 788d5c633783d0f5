// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schemacache

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadOrBuildBuildsOnce(t *testing.T) {
	c := New()
	calls := 0
	build := func() ([]byte, error) {
		calls++
		return []byte("schema-v1"), nil
	}

	blob, err := c.ReadOrBuild(build)
	require.NoError(t, err)
	assert.Equal(t, "schema-v1", string(blob))

	blob, err = c.ReadOrBuild(build)
	require.NoError(t, err)
	assert.Equal(t, "schema-v1", string(blob))
	assert.Equal(t, 1, calls)
}

func TestClearForcesRebuild(t *testing.T) {
	c := New()
	version := 0
	build := func() ([]byte, error) {
		version++
		if version == 1 {
			return []byte("v1"), nil
		}
		return []byte("v2"), nil
	}

	blob, err := c.ReadOrBuild(build)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(blob))
	firstGen := c.Generation()

	c.Clear()

	blob, err = c.ReadOrBuild(build)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(blob))
	assert.NotEqual(t, firstGen, c.Generation())
}

func TestReadOrBuildPropagatesBuildError(t *testing.T) {
	c := New()
	wantErr := errors.New("cluster unreachable")
	_, err := c.ReadOrBuild(func() ([]byte, error) { return nil, wantErr })
	require.ErrorIs(t, err, wantErr)
	assert.False(t, c.valid)
}

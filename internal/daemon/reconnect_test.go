// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package daemon

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconnectorRetriesUntilSuccess(t *testing.T) {
	r, err := newReconnector(20 * time.Millisecond)
	require.NoError(t, err)
	defer r.stop()

	var attempts int32
	var succeeded atomic.Bool
	require.NoError(t, r.start(func() error {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return errors.New("cluster unreachable")
		}
		succeeded.Store(true)
		return nil
	}))

	assert.Eventually(t, func() bool { return succeeded.Load() }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(3))
}

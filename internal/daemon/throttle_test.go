// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package daemon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThrottleDisabledNeverBlocks(t *testing.T) {
	th := newThrottle(1, 1, false)
	for i := 0; i < 100; i++ {
		assert.NoError(t, th.wait(context.Background()))
	}
}

func TestThrottleEnabledRespectsContextCancellation(t *testing.T) {
	th := newThrottle(0.0001, 1, true)
	require := th.wait(context.Background())
	assert.NoError(t, require)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, th.wait(ctx))
}

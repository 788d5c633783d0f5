// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package daemon

import (
	"context"

	"golang.org/x/time/rate"
)

// throttle is an admission-control rate limiter for incoming connections.
// A rate.Limiter is always constructed so turning it on later is a config
// flag, not a rewrite, but wait is a no-op until enabled is set.
type throttle struct {
	limiter *rate.Limiter
	enabled bool
}

func newThrottle(ratePerSecond float64, burst int, enabled bool) *throttle {
	return &throttle{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		enabled: enabled,
	}
}

// wait blocks for a token when the throttle is enabled; it is a no-op
// otherwise.
func (t *throttle) wait(ctx context.Context) error {
	if !t.enabled {
		return nil
	}
	return t.limiter.Wait(ctx)
}

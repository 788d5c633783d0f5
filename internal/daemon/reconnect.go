// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package daemon

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/snapwebsites/snapdbproxy/internal/log"
)

// reconnector retries opening the cluster driver on a fixed tick until it
// succeeds, as a recurring gocron job. Unlike a typical recurring job,
// this one removes itself from the scheduler as soon as a single attempt
// succeeds.
type reconnector struct {
	scheduler gocron.Scheduler
	interval  time.Duration
}

func newReconnector(interval time.Duration) (*reconnector, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &reconnector{scheduler: s, interval: interval}, nil
}

// start schedules attempt on every tick, beginning on the first tick (not
// immediately), stopping itself the first time attempt returns nil.
func (r *reconnector) start(attempt func() error) error {
	var job gocron.Job
	job, err := r.scheduler.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() {
			if err := attempt(); err != nil {
				log.Debugf("daemon: reconnect attempt failed: %v", err)
				return
			}
			if removeErr := r.scheduler.RemoveJob(job.ID()); removeErr != nil {
				log.Warnf("daemon: removing reconnect job: %v", removeErr)
			}
		}),
	)
	if err != nil {
		return err
	}
	r.scheduler.Start()
	return nil
}

func (r *reconnector) stop() error {
	return r.scheduler.Shutdown()
}

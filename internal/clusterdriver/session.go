// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package clusterdriver wraps gocql with the session and query translation
// semantics the proxy needs: a shared long-lived session, ephemeral
// per-request-timeout sessions (the driver refuses to change the timeout
// of an established session), and consistency/timestamp/paging binding.
package clusterdriver

import (
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/snapwebsites/snapdbproxy/internal/cursor"
	"github.com/snapwebsites/snapdbproxy/internal/wire"
	"github.com/snapwebsites/snapdbproxy/internal/wireerr"
)

// Config describes how to reach the cluster.
type Config struct {
	Hosts          []string
	Port           int
	Keyspace       string
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// Driver owns the shared session and hands out ephemeral timeout-scoped
// sessions on demand.
type Driver struct {
	cfg     Config
	cluster *gocql.ClusterConfig
	session *gocql.Session
}

// Open establishes the shared session used by every worker unless an order
// asks for a non-default per-request timeout.
func Open(cfg Config) (*Driver, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	cluster.Keyspace = cfg.Keyspace
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, wireerr.DriverUnreachable("opening cluster session", err)
	}

	return &Driver{cfg: cfg, cluster: cluster, session: session}, nil
}

// Session returns the shared long-lived session.
func (d *Driver) Session() *gocql.Session { return d.session }

// EphemeralSession builds a throw-away session scoped to timeout, used by
// the worker for a single order that asked for a non-default per-request
// timeout. The caller must Close it after the order completes.
func (d *Driver) EphemeralSession(timeout time.Duration) (*gocql.Session, error) {
	cluster := *d.cluster
	cluster.Timeout = timeout
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, wireerr.DriverUnreachable("opening ephemeral session", err)
	}
	return session, nil
}

// Close releases the shared session.
func (d *Driver) Close() {
	d.session.Close()
}

// withSession runs fn against an ephemeral per-request-timeout session
// when o asked for one, or the shared session otherwise — the driver
// refuses to change an established session's timeout.
func (d *Driver) withSession(o *wire.Order, fn func(*gocql.Session) error) error {
	if o.HasTimeout && o.TimeoutMS > 0 {
		session, err := d.EphemeralSession(time.Duration(o.TimeoutMS) * time.Millisecond)
		if err != nil {
			return err
		}
		defer session.Close()
		return fn(session)
	}
	return fn(d.session)
}

// ExecSuccess runs a non-row-returning order and reports only whether it
// succeeded.
func (d *Driver) ExecSuccess(o *wire.Order) error {
	return d.withSession(o, func(s *gocql.Session) error {
		return ExecSuccess(s, o)
	})
}

// ExecRows runs an order expecting at most one row of o.ColumnCount values.
func (d *Driver) ExecRows(o *wire.Order) ([][]byte, error) {
	var values [][]byte
	err := d.withSession(o, func(s *gocql.Session) error {
		v, err := ExecRow(s, o)
		values = v
		return err
	})
	return values, err
}

// Declare executes the first page of a paged order, retaining the driver
// query behind the returned cursor.Query for later Fetch calls. The
// concrete type is *PagedQuery; it is returned as the narrower interface
// the cursor registry (and worker.Backend) expect.
func (d *Driver) Declare(o *wire.Order) (cursor.Query, [][]byte, error) {
	var pq *PagedQuery
	var rows [][]byte
	err := d.withSession(o, func(s *gocql.Session) error {
		p, r, err := Declare(s, o)
		pq, rows = p, r
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return pq, rows, nil
}

// DescribeCluster introspects the schema on the shared session.
func (d *Driver) DescribeCluster() ([]byte, error) {
	return DescribeCluster(d.session)
}

// ToGocqlConsistency maps the wire enum onto gocql's, forcing QUORUM when
// the order left the field at its zero value — a guard against client
// code that forgot to pick a sensible level, expressed by simply never
// trusting a bare zero value as "the client chose ONE".
func ToGocqlConsistency(c wire.Consistency, explicit bool) gocql.Consistency {
	if !explicit {
		return gocql.Quorum
	}
	switch c {
	case wire.One:
		return gocql.One
	case wire.Two:
		return gocql.Two
	case wire.Three:
		return gocql.Three
	case wire.Quorum:
		return gocql.Quorum
	case wire.LocalQuorum:
		return gocql.LocalQuorum
	case wire.EachQuorum:
		return gocql.EachQuorum
	case wire.All:
		return gocql.All
	case wire.Any:
		return gocql.Any
	default:
		return gocql.Quorum
	}
}

// IsUnreachable classifies a gocql error as total loss of cluster
// connectivity versus an ordinary query failure.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	switch err {
	case gocql.ErrNoConnections, gocql.ErrConnectionClosed, gocql.ErrNoHosts:
		return true
	}
	_, unavailable := err.(*gocql.RequestErrUnavailable)
	return unavailable
}

func wrapQueryErr(stmt string, err error) error {
	if IsUnreachable(err) {
		return wireerr.DriverUnreachable(fmt.Sprintf("executing %q", stmt), err)
	}
	return wireerr.DriverQueryFailed(fmt.Sprintf("executing %q", stmt), err)
}

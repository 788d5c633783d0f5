// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package worker implements C7: one goroutine per accepted connection,
// each owning its own cursor registry and looping over framed orders
// until the peer disconnects, a malformed frame arrives, or the daemon
// kills the connection during shutdown.
package worker

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/snapwebsites/snapdbproxy/internal/cursor"
	"github.com/snapwebsites/snapdbproxy/internal/log"
	"github.com/snapwebsites/snapdbproxy/internal/proxyclient"
	"github.com/snapwebsites/snapdbproxy/internal/schemacache"
	"github.com/snapwebsites/snapdbproxy/internal/transport"
	"github.com/snapwebsites/snapdbproxy/internal/wire"
	"github.com/snapwebsites/snapdbproxy/internal/wireerr"
)

// Backend is the driver surface a worker needs. *clusterdriver.Driver
// implements it; tests substitute a fake to exercise dispatch, cursor and
// schema-cache behavior without a live cluster.
type Backend interface {
	ExecSuccess(o *wire.Order) error
	ExecRows(o *wire.Order) ([][]byte, error)
	Declare(o *wire.Order) (cursor.Query, [][]byte, error)
	DescribeCluster() ([]byte, error)
}

// Unreachable is called when a worker observes total loss of cluster
// connectivity, so the daemon can broadcast NOCASSANDRA and re-arm the
// reconnect timer.
type Unreachable func()

// Worker owns one accepted connection end to end.
type Worker struct {
	stream    *transport.Stream
	backend   Backend
	schema    *schemacache.Cache
	cursors   *cursor.Registry
	onUnreach Unreachable
}

// New builds a worker for an already-accepted stream.
func New(stream *transport.Stream, backend Backend, schema *schemacache.Cache, onUnreach Unreachable) *Worker {
	return &Worker{
		stream:    stream,
		backend:   backend,
		schema:    schema,
		cursors:   cursor.NewRegistry(),
		onUnreach: onUnreach,
	}
}

// Run loops until the connection ends. It recovers from any panic inside
// a single order's handling so one bad request cannot take the whole
// daemon down; a recovered panic ends the loop for this connection only.
func (w *Worker) Run() {
	defer w.stream.Close()

	for {
		if !w.serveOne() {
			return
		}
	}
}

func (w *Worker) serveOne() (more bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("worker: recovered panic handling order: %v", r)
			more = false
		}
	}()

	order, err := proxyclient.ReceiveOrder(w.stream)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			log.Debugf("worker: ending connection: %v", err)
		}
		return false
	}

	if err := order.Validate(); err != nil {
		w.reply(wire.Fail(err))
		return true
	}

	result, after := w.dispatch(order)

	if order.ClearSchemaCache {
		w.schema.Clear()
	}

	if !result.Success && result.ErrKind == wireerr.KindDriverUnreachable {
		if w.onUnreach != nil {
			w.onUnreach()
		}
		w.reply(result)
		if after != nil {
			after()
		}
		return false
	}

	w.reply(result)
	if after != nil {
		after()
	}
	return true
}

func (w *Worker) reply(res wire.Result) {
	if err := proxyclient.SendResult(w.stream, &res); err != nil {
		log.Debugf("worker: failed to send result: %v", err)
	}
}

// dispatch runs one order against the backend/cursor registry and returns
// its result plus an optional thunk the caller must run only after the
// result has been written back to the client. Every shape but close-cursor
// has no such followup and returns a nil thunk.
func (w *Worker) dispatch(o *wire.Order) (wire.Result, func()) {
	switch o.Shape {
	case wire.ShapeSuccess:
		return w.execSuccess(o), nil
	case wire.ShapeRows:
		return w.execRows(o), nil
	case wire.ShapeDeclareCursor:
		return w.declareCursor(o), nil
	case wire.ShapeFetchCursor:
		return w.fetchCursor(o), nil
	case wire.ShapeCloseCursor:
		return w.closeCursor(o)
	case wire.ShapeDescribeCluster:
		return w.describeCluster(), nil
	default:
		return wire.Fail(wireerr.Protocol("unrecognized result shape")), nil
	}
}

func (w *Worker) execSuccess(o *wire.Order) wire.Result {
	if err := w.backend.ExecSuccess(o); err != nil {
		return wire.Fail(err)
	}
	return wire.OK()
}

func (w *Worker) execRows(o *wire.Order) wire.Result {
	values, err := w.backend.ExecRows(o)
	if err != nil {
		return wire.Fail(err)
	}
	return wire.OK(values...)
}

func (w *Worker) declareCursor(o *wire.Order) wire.Result {
	pq, rows, err := w.backend.Declare(o)
	if err != nil {
		return wire.Fail(err)
	}

	id := w.cursors.Declare(pq)
	idBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(idBytes, id)

	values := make([][]byte, 0, 1+len(rows))
	values = append(values, idBytes)
	values = append(values, rows...)
	return wire.OK(values...)
}

func (w *Worker) fetchCursor(o *wire.Order) wire.Result {
	rows, err := w.cursors.Fetch(o.CursorID)
	if err != nil {
		return wire.Fail(err)
	}
	return wire.OK(rows...)
}

// closeCursor replies success as soon as the cursor is deactivated, and
// only releases the driver-side query once the client has seen that
// reply: the connection is synchronized on the socket, so there is no risk
// of a Fetch racing the release.
func (w *Worker) closeCursor(o *wire.Order) (wire.Result, func()) {
	q, err := w.cursors.Deactivate(o.CursorID)
	if err != nil {
		return wire.Fail(err), nil
	}
	return wire.OK(), q.Release
}

func (w *Worker) describeCluster() wire.Result {
	blob, err := w.schema.ReadOrBuild(w.backend.DescribeCluster)
	if err != nil {
		return wire.Fail(err)
	}
	return wire.OK(blob)
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package proxyclient is the application-facing façade over the proxy
// wire: it hides reconnection behind SendOrder and exposes the daemon-side
// framing helpers the worker package uses on the accepted end of the same
// wire.
package proxyclient

import (
	"sync"

	"github.com/snapwebsites/snapdbproxy/internal/log"
	"github.com/snapwebsites/snapdbproxy/internal/transport"
	"github.com/snapwebsites/snapdbproxy/internal/wire"
)

// DialFunc opens a fresh stream to the proxy. Tests substitute this to
// avoid a real socket.
type DialFunc func() (*transport.Stream, error)

// DialTCP builds a DialFunc that redials addr over TCP on every call,
// applying the given transport.Mode and trust-store directory to each new
// connection. A daemon's own "tls" config section and the DialFunc an
// external client builds against that same daemon should agree on mode and
// certDir, or the client either fails the handshake or downgrades where
// the daemon requires TLS.
func DialTCP(addr string, mode transport.Mode, certDir string) DialFunc {
	return func() (*transport.Stream, error) {
		return transport.Dial("tcp", addr, mode, certDir)
	}
}

// Client hides a proxy connection behind a single blocking call per order.
// It is safe for concurrent use; all orders are serialized onto the single
// underlying stream the way the original BIO-backed client serialized them
// onto one socket.
type Client struct {
	dial DialFunc

	mu     sync.Mutex
	stream *transport.Stream
}

// New builds a façade that lazily dials on first use and redials whenever
// a write fails.
func New(dial DialFunc) *Client {
	return &Client{dial: dial}
}

// SendOrder writes order to the proxy. If order.Blocking is false it
// returns a synthetic success immediately after the write completes; a
// blocking order waits for the corresponding framed Result.
//
// Any transport failure — on write or on read — yields a non-nil,
// success=false Result rather than an error: the façade never retries on
// its own, and the underlying connection is dropped so the next call
// reconnects from scratch.
func (c *Client) SendOrder(order *wire.Order) wire.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	stream, err := c.ensureConnected()
	if err != nil {
		return wire.Fail(err)
	}

	if err := wire.WriteOrder(stream, order); err != nil {
		c.reset()
		return wire.Fail(err)
	}

	if !order.Blocking {
		return wire.OK()
	}

	res, err := wire.ReadResult(stream)
	if err != nil {
		c.reset()
		return wire.Fail(err)
	}
	return *res
}

func (c *Client) ensureConnected() (*transport.Stream, error) {
	if c.stream != nil {
		return c.stream, nil
	}
	stream, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.stream = stream
	return stream, nil
}

// reset drops the current connection; the next SendOrder redials.
func (c *Client) reset() {
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			log.Debugf("proxyclient: closing stale stream: %v", err)
		}
		c.stream = nil
	}
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	return err
}

// ReceiveOrder is the daemon-side complement used by the worker: it reads
// one framed Order off an already-accepted connection.
func ReceiveOrder(stream *transport.Stream) (*wire.Order, error) {
	return wire.ReadOrder(stream)
}

// SendResult is the daemon-side complement used by the worker: it frames
// and writes result back to the client that sent the matching Order.
func SendResult(stream *transport.Stream, result *wire.Result) error {
	return wire.WriteResult(stream, result)
}

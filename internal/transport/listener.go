// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"net"
	"time"
)

// ListenerConfig controls the socket the daemon binds and the per-accepted-
// connection policy applied to it.
type ListenerConfig struct {
	Network   string // "tcp" or "tcp4"/"tcp6"
	Address   string // "host:port"
	Mode      Mode
	CertDir   string
	KeyFile   string
	CertFile  string
	Keepalive time.Duration // 0 disables TCP keepalive
}

// Listener accepts connections and wraps each into a Stream according to
// Mode, applying the configured keepalive policy.
type Listener struct {
	cfg ListenerConfig
	ln  net.Listener
}

// Listen binds the configured address. In SecureBestEffort or
// SecureRequired mode it refuses to start unless both cert_file and
// key_file are set; the certificate itself is loaded on each Accept.
func Listen(cfg ListenerConfig) (*Listener, error) {
	network := cfg.Network
	if network == "" {
		network = "tcp"
	}

	ln, err := net.Listen(network, cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", cfg.Address, err)
	}

	if cfg.Mode != Plain {
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			ln.Close()
			return nil, fmt.Errorf("transport: secure listener requires cert_file and key_file")
		}
	}

	return &Listener{cfg: cfg, ln: ln}, nil
}

// Accept blocks for the next connection and returns it as a Stream, already
// wrapped in TLS when Mode != Plain.
func (l *Listener) Accept() (*Stream, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}

	if l.cfg.Keepalive > 0 {
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.SetKeepAlive(true)
			tc.SetKeepAlivePeriod(l.cfg.Keepalive)
		}
	}

	if l.cfg.Mode == Plain {
		return NewStream(conn), nil
	}

	srvConn, err := acceptSecure(conn, l.cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return NewStream(srvConn), nil
}

// Addr returns the bound local address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package transport

import (
	"crypto/tls"
	"fmt"
	"net"
)

// acceptSecure upgrades an accepted plain connection to TLS using the
// listener's configured certificate. SecureRequired and SecureBestEffort
// behave identically here: once the daemon decided to run a secure
// listener, every accepted connection is held to the same handshake.
func acceptSecure(conn net.Conn, cfg ListenerConfig) (net.Conn, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: loading server certificate: %w", err)
	}

	tlsConn := tls.Server(conn, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})

	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("transport: TLS handshake failed: %w", err)
	}

	return tlsConn, nil
}

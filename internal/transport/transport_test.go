// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedCert writes a throwaway self-signed certificate and key to a
// fresh directory and returns their paths plus the directory itself, which
// doubles as a trust store containing exactly that one certificate.
func selfSignedCert(t *testing.T, commonName string) (certFile, keyFile, certDir string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	require.NoError(t, err)

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}), 0o600))

	return certFile, keyFile, dir
}

func TestPlainListenAcceptRoundTrip(t *testing.T) {
	ln, err := Listen(ListenerConfig{Address: "127.0.0.1:0", Mode: Plain})
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s, err := ln.Accept()
		require.NoError(t, err)
		defer s.Close()

		buf := make([]byte, 5)
		n, err := s.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, "hello", string(buf))

		_, err = s.Write([]byte("world"))
		require.NoError(t, err)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	client := NewStream(conn)
	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	<-done
}

func TestReadLine(t *testing.T) {
	ln, err := Listen(ListenerConfig{Address: "127.0.0.1:0", Mode: Plain})
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, _ := net.Dial("tcp", ln.Addr().String())
		conn.Write([]byte("first line\nsecond"))
		conn.Close()
	}()

	s, err := ln.Accept()
	require.NoError(t, err)
	defer s.Close()

	line, err := s.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "first line", line)

	line, err = s.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "second", line)

	_, err = s.ReadLine()
	assert.Error(t, err)
}

func TestReadReturnsEOFOnShortClose(t *testing.T) {
	ln, err := Listen(ListenerConfig{Address: "127.0.0.1:0", Mode: Plain})
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, _ := net.Dial("tcp", ln.Addr().String())
		conn.Write([]byte("ab"))
		conn.Close()
	}()

	s, err := ln.Accept()
	require.NoError(t, err)
	defer s.Close()

	buf := make([]byte, 10)
	_, err = s.Read(buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSecureListenerRequiresCertificate(t *testing.T) {
	_, err := Listen(ListenerConfig{Address: "127.0.0.1:0", Mode: SecureRequired})
	require.Error(t, err)
}

func TestSecureRoundTripWithTrustedCertificate(t *testing.T) {
	certFile, keyFile, certDir := selfSignedCert(t, "127.0.0.1")

	ln, err := Listen(ListenerConfig{Address: "127.0.0.1:0", Mode: SecureRequired, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s, err := ln.Accept()
		require.NoError(t, err)
		defer s.Close()

		buf := make([]byte, 5)
		n, err := s.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(buf[:n]))

		_, err = s.Write([]byte("world"))
		require.NoError(t, err)
	}()

	client, err := Dial("tcp", ln.Addr().String(), SecureRequired, certDir)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "world", string(buf[:n]))

	<-done
}

func TestSecureDialRejectsUntrustedCertificate(t *testing.T) {
	certFile, keyFile, _ := selfSignedCert(t, "127.0.0.1")
	_, _, wrongTrustDir := selfSignedCert(t, "127.0.0.1")

	ln, err := Listen(ListenerConfig{Address: "127.0.0.1:0", Mode: SecureRequired, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	defer ln.Close()

	go ln.Accept()

	// The client's trust store holds an unrelated self-signed certificate,
	// not the one the listener actually presents: the handshake must fail
	// outright rather than silently falling back to a plain connection.
	_, err = Dial("tcp", ln.Addr().String(), SecureRequired, wrongTrustDir)
	require.Error(t, err)
}

func TestListenerKeepaliveDoesNotBreakRoundTrip(t *testing.T) {
	ln, err := Listen(ListenerConfig{Address: "127.0.0.1:0", Mode: Plain, Keepalive: 30 * time.Second})
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, _ := net.Dial("tcp", ln.Addr().String())
		conn.Write([]byte("x"))
		conn.Close()
	}()

	s, err := ln.Accept()
	require.NoError(t, err)
	defer s.Close()

	buf := make([]byte, 1)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

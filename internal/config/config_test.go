// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/snapwebsites/snapdbproxy/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `{
	"cassandra_host_list": "10.0.0.1,10.0.0.2",
	"cassandra_port": 9042,
	"max_pending_connections": 128,
	"snapcommunicator": "127.0.0.1:4040",
	"snapdbproxy": "127.0.0.1:4042",
	"server-name": "node-1"
}`

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "snapdbproxyd.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "node-1", cfg.ServerName)
	assert.Equal(t, 9042, cfg.CassandraPort)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.CassandraHosts())
}

func TestLoadRejectsMissingRequiredField(t *testing.T) {
	path := writeConfig(t, `{"cassandra_port": 9042}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsOutOfRangePort(t *testing.T) {
	path := writeConfig(t, `{
		"cassandra_host_list": "10.0.0.1",
		"cassandra_port": 99999,
		"max_pending_connections": 1,
		"snapcommunicator": "127.0.0.1:4040",
		"snapdbproxy": "127.0.0.1:4042",
		"server-name": "node-1"
	}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, `{
		"cassandra_host_list": "10.0.0.1",
		"cassandra_port": 9042,
		"max_pending_connections": 1,
		"snapcommunicator": "127.0.0.1:4040",
		"snapdbproxy": "127.0.0.1:4042",
		"server-name": "node-1",
		"typo_field": true
	}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAcceptsTLSSection(t *testing.T) {
	path := writeConfig(t, `{
		"cassandra_host_list": "10.0.0.1",
		"cassandra_port": 9042,
		"max_pending_connections": 1,
		"snapcommunicator": "127.0.0.1:4040",
		"snapdbproxy": "127.0.0.1:4042",
		"server-name": "node-1",
		"tls": {"mode": "required", "cert_file": "/etc/snapdbproxy/cert.pem", "key_file": "/etc/snapdbproxy/key.pem"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	mode, err := cfg.TransportMode()
	require.NoError(t, err)
	assert.Equal(t, transport.SecureRequired, mode)
}

func TestTransportModeDefaultsToPlain(t *testing.T) {
	mode, err := Config{}.TransportMode()
	require.NoError(t, err)
	assert.Equal(t, transport.Plain, mode)
}

func TestTransportModeRejectsUnknownMode(t *testing.T) {
	_, err := Config{TLS: TLSConfig{Mode: "nope"}}.TransportMode()
	assert.Error(t, err)
}

func TestBusConfigFallsBackToTopLevelFields(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	busCfg, err := cfg.BusConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4040", busCfg.Address)
	assert.Equal(t, "node-1", busCfg.ServerName)
}

func TestParsePortRejectsOutOfRange(t *testing.T) {
	_, err := ParsePort("70000")
	assert.Error(t, err)
}

func TestParsePortAccepts(t *testing.T) {
	port, err := ParsePort("9042")
	require.NoError(t, err)
	assert.Equal(t, 9042, port)
}

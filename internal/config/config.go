// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the daemon's JSON configuration file:
// a two-step validate-then-decode sequence that returns errors instead of
// calling log.Fatal, so callers (and tests) control process exit.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/snapwebsites/snapdbproxy/internal/audit"
	"github.com/snapwebsites/snapdbproxy/internal/bus"
	"github.com/snapwebsites/snapdbproxy/internal/transport"
)

// AuditConfig selects the audit log's backing store.
type AuditConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// AdminBridgeConfig configures the HTTP front door for the admin console.
type AdminBridgeConfig struct {
	Listen         string   `json:"listen"`
	AllowedClients []string `json:"allowed_clients"`
}

// TLSConfig selects whether the client-facing listener (and a proxyclient
// dialer built against this same file) runs plain or TLS, and where the
// certificate material lives. Mode is one of "" (== "plain"),
// "best_effort" or "required".
type TLSConfig struct {
	Mode     string `json:"mode"`
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
	CertDir  string `json:"cert_dir"`
}

// Config is the fully decoded, validated daemon configuration.
type Config struct {
	LogConfig             string            `json:"log_config"`
	CassandraHostList     string            `json:"cassandra_host_list"`
	CassandraPort         int               `json:"cassandra_port"`
	MaxPendingConnections int               `json:"max_pending_connections"`
	Snapcommunicator      string            `json:"snapcommunicator"`
	Snapdbproxy           string            `json:"snapdbproxy"`
	ServerName            string            `json:"server-name"`
	Bus                   json.RawMessage   `json:"bus"`
	Audit                 AuditConfig       `json:"audit"`
	AdminBridge           AdminBridgeConfig `json:"admin_bridge"`
	TLS                   TLSConfig         `json:"tls"`
	RunAsUser             string            `json:"run-as-user"`
	RunAsGroup            string            `json:"run-as-group"`
}

// TransportMode resolves the "tls" section's Mode string into a
// transport.Mode, defaulting to Plain when the section is absent. It is the
// single place that turns the config file's vocabulary into the one the
// listener and a proxyclient dialer both understand.
func (c Config) TransportMode() (transport.Mode, error) {
	switch c.TLS.Mode {
	case "", "plain":
		return transport.Plain, nil
	case "best_effort":
		return transport.SecureBestEffort, nil
	case "required":
		return transport.SecureRequired, nil
	default:
		return transport.Plain, fmt.Errorf("config: unknown tls.mode %q", c.TLS.Mode)
	}
}

// CassandraHosts splits CassandraHostList on commas, trimming whitespace.
func (c Config) CassandraHosts() []string {
	parts := strings.Split(c.CassandraHostList, ",")
	hosts := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			hosts = append(hosts, p)
		}
	}
	return hosts
}

// BusConfig decodes the "bus" section, falling back to a config built from
// Snapcommunicator/ServerName when the section is absent.
func (c Config) BusConfig() (bus.Config, error) {
	if len(c.Bus) > 0 {
		return bus.DecodeConfig(c.Bus)
	}
	return bus.Config{Address: c.Snapcommunicator, ServerName: c.ServerName}, nil
}

// AuditStore opens the audit log described by the Audit section, defaulting
// to a local sqlite3 file in the daemon's working directory.
func (c Config) AuditStore() (*audit.Store, error) {
	driver := c.Audit.Driver
	if driver == "" {
		driver = "sqlite3"
	}
	dsn := c.Audit.DSN
	if dsn == "" {
		dsn = "snapdbproxy-audit.db"
	}
	return audit.Open(driver, dsn)
}

// Load reads, schema-validates, and decodes the configuration file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := Validate(raw); err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
	}

	if err := cfg.checkPort(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) checkPort() error {
	if c.CassandraPort < 0 || c.CassandraPort > 65535 {
		return fmt.Errorf("config: cassandra_port %d out of range", c.CassandraPort)
	}
	return nil
}

// ParsePort is a small helper for command-line flags that accept a port as
// a string.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("config: invalid port %q: %w", s, err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("config: port %d out of range", port)
	}
	return port, nil
}

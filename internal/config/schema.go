// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is the JSON schema for the daemon's configuration file. The bus
// section is only checked to be an object; its fields are checked by
// bus.DecodeConfig.
const Schema = `{
    "type": "object",
    "description": "snapdbproxyd configuration file.",
    "properties": {
        "log_config": { "type": "string" },
        "cassandra_host_list": {
            "description": "Comma-separated Cassandra/Scylla seed hosts.",
            "type": "string",
            "minLength": 1
        },
        "cassandra_port": {
            "type": "integer",
            "minimum": 0,
            "maximum": 65535
        },
        "max_pending_connections": {
            "type": "integer",
            "minimum": 1
        },
        "snapcommunicator": {
            "description": "address:port of the process bus.",
            "type": "string",
            "minLength": 1
        },
        "snapdbproxy": {
            "description": "address:port this daemon listens on.",
            "type": "string",
            "minLength": 1
        },
        "server-name": { "type": "string", "minLength": 1 },
        "run-as-user": { "type": "string" },
        "run-as-group": { "type": "string" },
        "bus": { "type": "object" },
        "audit": {
            "type": "object",
            "properties": {
                "driver": { "type": "string", "enum": ["sqlite3", "mysql"] },
                "dsn": { "type": "string" }
            }
        },
        "admin_bridge": {
            "type": "object",
            "properties": {
                "listen": { "type": "string" },
                "allowed_clients": {
                    "type": "array",
                    "items": { "type": "string" }
                }
            }
        },
        "tls": {
            "type": "object",
            "description": "Client-facing listener transport security.",
            "properties": {
                "mode": { "type": "string", "enum": ["plain", "best_effort", "required"] },
                "cert_file": { "type": "string" },
                "key_file": { "type": "string" },
                "cert_dir": { "type": "string" }
            }
        }
    },
    "required": [
        "cassandra_host_list",
        "cassandra_port",
        "max_pending_connections",
        "snapcommunicator",
        "snapdbproxy",
        "server-name"
    ]
}`

// Validate checks instance, an unparsed config file body, against Schema
// before any field is decoded, so a missing or malformed field is reported
// in schema terms rather than as a generic decode error. Schema does not
// forbid additional properties; unknown fields are rejected afterwards by
// Load's decoder.
func Validate(instance []byte) error {
	sch, err := jsonschema.CompileString("snapdbproxyd.schema.json", Schema)
	if err != nil {
		return fmt.Errorf("config: compiling schema: %w", err)
	}

	var v interface{}
	if err := json.Unmarshal(instance, &v); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	return nil
}

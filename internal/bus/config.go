// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"bytes"
	"encoding/json"

	"github.com/snapwebsites/snapdbproxy/internal/log"
)

// Config holds the connection settings for the process-broker bus.
type Config struct {
	Address       string `json:"address"`         // e.g. "nats://localhost:4222"
	Username      string `json:"username"`        // optional
	Password      string `json:"password"`        // optional
	CredsFilePath string `json:"creds-file-path"` // optional
	ServerName    string `json:"server-name"`     // identity announced on REGISTER
}

// ConfigSchema documents the "bus" section of the daemon's JSON config.
// Nothing compiles or validates against it: internal/config's schema only
// requires "bus" to be an object, and DecodeConfig rejects unknown fields.
const ConfigSchema = `{
    "type": "object",
    "description": "Configuration for the process-broker bus client.",
    "properties": {
        "address": {
            "description": "Address of the bus broker (e.g. 'nats://localhost:4222').",
            "type": "string"
        },
        "username": { "type": "string" },
        "password": { "type": "string" },
        "creds-file-path": { "type": "string" },
        "server-name": {
            "description": "Identity this daemon announces to the broker on REGISTER.",
            "type": "string"
        }
    },
    "required": ["address", "server-name"]
}`

// DecodeConfig parses the "bus" section of the daemon config.
func DecodeConfig(raw json.RawMessage) (Config, error) {
	var cfg Config
	if raw == nil {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		log.Errorf("bus: invalid configuration: %v", err)
		return cfg, err
	}
	return cfg, nil
}

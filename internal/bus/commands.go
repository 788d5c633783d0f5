// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bus

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Name is one command of the process bus vocabulary.
type Name string

const (
	REGISTER       Name = "REGISTER"
	UNREGISTER     Name = "UNREGISTER"
	READY          Name = "READY"
	HELP           Name = "HELP"
	COMMANDS       Name = "COMMANDS"
	UNKNOWN        Name = "UNKNOWN"
	LOG            Name = "LOG"
	STOP           Name = "STOP"
	QUITTING       Name = "QUITTING"
	CASSANDRASTATUS Name = "CASSANDRASTATUS"
	CASSANDRAREADY Name = "CASSANDRAREADY"
	NOCASSANDRA    Name = "NOCASSANDRA"
	MODIFYSETTINGS Name = "MODIFYSETTINGS"
	MANAGERSTATUS  Name = "MANAGERSTATUS"
)

// recognized is the vocabulary the daemon understands. ReplyCommands
// reports it sorted by name (see supportedCommandsList).
var recognized = []Name{
	REGISTER, UNREGISTER, READY, HELP, COMMANDS, UNKNOWN, LOG, STOP, QUITTING,
	CASSANDRASTATUS, CASSANDRAREADY, NOCASSANDRA, MODIFYSETTINGS, MANAGERSTATUS,
}

// IsRecognized reports whether name is part of the supported vocabulary.
func IsRecognized(name Name) bool {
	for _, n := range recognized {
		if n == name {
			return true
		}
	}
	return false
}

func supportedCommandsList() string {
	names := make([]string, len(recognized))
	for i, n := range recognized {
		names[i] = string(n)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Command is a typed bus message: a command Name plus its named string
// parameters. Every command on this bus only ever needs flat string-valued
// parameters (server names, field names, status snapshots).
type Command struct {
	Name   Name              `json:"command"`
	Params map[string]string `json:"params,omitempty"`
}

func encodeCommand(cmd Command) ([]byte, error) {
	return json.Marshal(cmd)
}

func decodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("bus: decoding command: %w", err)
	}
	if cmd.Name == "" {
		return Command{}, fmt.Errorf("bus: message carries no command name")
	}
	return cmd, nil
}

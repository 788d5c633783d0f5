// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package bus

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRoundTrip(t *testing.T) {
	cmd := Command{Name: MANAGERSTATUS, Params: map[string]string{"host": "node-1", "status": "ok"}}
	data, err := encodeCommand(cmd)
	require.NoError(t, err)

	got, err := decodeCommand(data)
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestDecodeCommandRejectsMissingName(t *testing.T) {
	_, err := decodeCommand([]byte(`{"params":{"a":"b"}}`))
	assert.Error(t, err)
}

func TestDecodeCommandRejectsMalformedJSON(t *testing.T) {
	_, err := decodeCommand([]byte(`not json`))
	assert.Error(t, err)
}

func TestIsRecognizedCoversFullVocabulary(t *testing.T) {
	for _, n := range []Name{
		REGISTER, UNREGISTER, READY, HELP, COMMANDS, UNKNOWN, LOG, STOP, QUITTING,
		CASSANDRASTATUS, CASSANDRAREADY, NOCASSANDRA, MODIFYSETTINGS, MANAGERSTATUS,
	} {
		assert.True(t, IsRecognized(n), n)
	}
	assert.False(t, IsRecognized(Name("BOGUS")))
}

func TestSupportedCommandsListIsStableAndSorted(t *testing.T) {
	list := supportedCommandsList()
	assert.Contains(t, list, "REGISTER")
	assert.Contains(t, list, "MANAGERSTATUS")
	assert.Equal(t, list, supportedCommandsList())
	assert.True(t, sort.StringsAreSorted(strings.Split(list, ",")))
}

func TestDecodeConfigRejectsUnknownFields(t *testing.T) {
	_, err := DecodeConfig(json.RawMessage(`{"address":"nats://x","server-name":"a","bogus":1}`))
	assert.Error(t, err)
}

func TestDecodeConfigAcceptsMinimalConfig(t *testing.T) {
	cfg, err := DecodeConfig(json.RawMessage(`{"address":"nats://localhost:4222","server-name":"proxy-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", cfg.Address)
	assert.Equal(t, "proxy-1", cfg.ServerName)
}

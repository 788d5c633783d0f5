// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package endpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"127.0.0.1:4042",
		"[::1]:9042",
		"192.168.1.5:80",
		"10.0.0.1:1",
	}
	for _, c := range cases {
		ep, err := Parse(c, 0, TCP)
		require.NoError(t, err, c)
		assert.Equal(t, c, ep.String())

		back, err := Parse(ep.String(), 0, TCP)
		require.NoError(t, err)
		assert.True(t, ep.Equal(back))
	}
}

func TestParseClassification(t *testing.T) {
	cases := []struct {
		addr string
		want Class
	}{
		{"[::1]:9042", Loopback},
		{"169.254.1.2:80", LinkLocal},
		{"10.1.2.3:1", Private},
		{"172.16.0.1:1", Private},
		{"192.168.0.1:1", Private},
		{"100.64.0.1:1", Carrier},
		{"224.0.0.1:1", Multicast},
		{"0.0.0.0:1", Any},
		{"[::]:1", Any},
		{"8.8.8.8:53", Public},
		{"[fd00::1]:1", Private},
		{"[fe80::1]:1", LinkLocal},
	}
	for _, c := range cases {
		ep, err := Parse(c.addr, 0, TCP)
		require.NoError(t, err, c.addr)
		assert.Equal(t, c.want, ep.Classify(), c.addr)
	}
}

func TestParseMissingPortNoDefault(t *testing.T) {
	_, err := Parse("[::1]", 0, TCP)
	require.Error(t, err)
	var perr *ParamError
	require.ErrorAs(t, err, &perr)
}

func TestParsePortOutOfRange(t *testing.T) {
	_, err := Parse("127.0.0.1:0", 0, TCP)
	require.Error(t, err)

	_, err = Parse("127.0.0.1:65536", 0, TCP)
	require.Error(t, err)
}

func TestParseBracketedIPv4Rejected(t *testing.T) {
	_, err := Parse("[127.0.0.1]:80", 0, TCP)
	require.Error(t, err)
}

func TestParseDefaultPort(t *testing.T) {
	ep, err := Parse("127.0.0.1", 4042, TCP)
	require.NoError(t, err)
	assert.Equal(t, 4042, ep.Port())
}

func TestOrderingIgnoresPortAndProtocol(t *testing.T) {
	a, err := Parse("10.0.0.1:111", 0, TCP)
	require.NoError(t, err)
	b, err := Parse("10.0.0.1:222", 0, UDP)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Compare(b))
	assert.True(t, a.Equal(b))
}

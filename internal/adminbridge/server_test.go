// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package adminbridge

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeForwarder struct {
	calls []ModifySettingsRequest
	err   error
}

func (f *fakeForwarder) ForwardModifySettings(req ModifySettingsRequest) error {
	f.calls = append(f.calls, req)
	return f.err
}

func TestModifySettingsFromAllowedIP(t *testing.T) {
	fwd := &fakeForwarder{}
	s, err := New(fwd, []string{"10.0.0.0/8"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/modify-settings", bytes.NewBufferString(`{"host":"node-1","field":"log-level","value":"debug"}`))
	req.RemoteAddr = "10.1.2.3:5555"
	rr := httptest.NewRecorder()

	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	require.Len(t, fwd.calls, 1)
	assert.Equal(t, "node-1", fwd.calls[0].Host)
}

func TestModifySettingsFromDisallowedIPIsForbidden(t *testing.T) {
	fwd := &fakeForwarder{}
	s, err := New(fwd, []string{"10.0.0.0/8"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/modify-settings", bytes.NewBufferString(`{"field":"x","save_everywhere":true}`))
	req.RemoteAddr = "192.168.1.1:5555"
	rr := httptest.NewRecorder()

	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, fwd.calls)
}

func TestBrewMethodIsTeapot(t *testing.T) {
	fwd := &fakeForwarder{}
	s, err := New(fwd, []string{"10.0.0.0/8"})
	require.NoError(t, err)

	req := httptest.NewRequest("BREW", "/modify-settings", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rr := httptest.NewRecorder()

	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestMissingFieldIsBadRequest(t *testing.T) {
	fwd := &fakeForwarder{}
	s, err := New(fwd, []string{"10.0.0.0/8"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/modify-settings", bytes.NewBufferString(`{"host":"node-1"}`))
	req.RemoteAddr = "10.1.2.3:5555"
	rr := httptest.NewRecorder()

	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetIsMethodNotAllowed(t *testing.T) {
	fwd := &fakeForwarder{}
	s, err := New(fwd, []string{"10.0.0.0/8"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/modify-settings", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rr := httptest.NewRecorder()

	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package daemon

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := newMetrics()
	m.connectionsTotal.Inc()
	m.ordersByShape.WithLabelValues("rows").Inc()
	m.cursorsOpen.Set(2)
	m.noCassandraTotal.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "snapdbproxy_connections_accepted_total 1")
	assert.Contains(t, body, "snapdbproxy_cursors_open 2")
	assert.True(t, strings.Contains(body, "snapdbproxy_orders_total"))
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	dsn := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open("sqlite3", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndQueryModifySettings(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.RecordModifySettings(now, "node-1", "log-level", "info", "debug", false))
	require.NoError(t, s.RecordModifySettings(now.Add(time.Second), "node-2", "log-level", "info", "debug", true))

	events, err := s.RecentEvents("node-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "node-1", events[0].Host)
	assert.Equal(t, "debug", events[0].NewValue)

	all, err := s.RecentEvents("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRecentEventsOrdersNewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordModifySettings(base, "a", "f", "1", "2", false))
	require.NoError(t, s.RecordModifySettings(base.Add(time.Hour), "a", "f", "2", "3", false))

	events, err := s.RecentEvents("a", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "3", events[0].NewValue, "most recent event first")
}

func TestRecordManagerStatus(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordManagerStatus(time.Now(), "node-1", map[string]string{"cassandra": "ready"}))

	events, err := s.RecentEvents("node-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "MANAGERSTATUS", events[0].Command)
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package audit

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Event is one recorded MODIFYSETTINGS or MANAGERSTATUS bus occurrence.
type Event struct {
	ID             int64     `db:"id"`
	OccurredAt     time.Time `db:"occurred_at"`
	Command        string    `db:"command"`
	Host           string    `db:"host"`
	Field          string    `db:"field"`
	OldValue       string    `db:"old_value"`
	NewValue       string    `db:"new_value"`
	SaveEverywhere bool      `db:"save_everywhere"`
}

// RecordModifySettings persists one accepted MODIFYSETTINGS event before
// the corresponding bus message is forwarded, per SPEC_FULL.md's
// durability ordering for the audit trail.
func (s *Store) RecordModifySettings(occurredAt time.Time, host, field, oldValue, newValue string, saveEverywhere bool) error {
	query, args, err := sq.Insert("audit_log").
		Columns("occurred_at", "command", "host", "field", "old_value", "new_value", "save_everywhere").
		Values(occurredAt.UTC(), "MODIFYSETTINGS", host, field, oldValue, newValue, saveEverywhere).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return fmt.Errorf("audit: building insert: %w", err)
	}

	_, err = s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("audit: recording MODIFYSETTINGS: %w", err)
	}
	return nil
}

// RecordManagerStatus persists a MANAGERSTATUS snapshot.
func (s *Store) RecordManagerStatus(occurredAt time.Time, host string, snapshot map[string]string) error {
	query, args, err := sq.Insert("audit_log").
		Columns("occurred_at", "command", "host", "new_value").
		Values(occurredAt.UTC(), "MANAGERSTATUS", host, formatSnapshot(snapshot)).
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return fmt.Errorf("audit: building insert: %w", err)
	}

	_, err = s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("audit: recording MANAGERSTATUS: %w", err)
	}
	return nil
}

// RecentEvents returns the most recent n events for host, newest first. An
// empty host returns events for every host.
func (s *Store) RecentEvents(host string, n int) ([]Event, error) {
	builder := sq.Select("id", "occurred_at", "command", "host", "field", "old_value", "new_value", "save_everywhere").
		From("audit_log").
		OrderBy("occurred_at DESC").
		Limit(uint64(n)).
		PlaceholderFormat(sq.Question)
	if host != "" {
		builder = builder.Where(sq.Eq{"host": host})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("audit: building select: %w", err)
	}

	var events []Event
	if err := s.db.Select(&events, query, args...); err != nil {
		return nil, fmt.Errorf("audit: querying recent events: %w", err)
	}
	return events, nil
}

func formatSnapshot(snapshot map[string]string) string {
	out := ""
	for k, v := range snapshot {
		if out != "" {
			out += ","
		}
		out += k + "=" + v
	}
	return out
}

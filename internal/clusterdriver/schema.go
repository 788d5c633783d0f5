// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package clusterdriver

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/gocql/gocql"
)

// tableSchema is one row of the opaque schema blob built for the
// describe-cluster result. Its fields are never interpreted by the wire
// codec or the client — only by whatever eventually decodes the blob.
type tableSchema struct {
	Keyspace string
	Table    string
	Column   string
	Kind     string
	Type     string
}

// DescribeCluster introspects system_schema and returns an opaque blob
// describing every user keyspace's tables and columns. The blob's byte
// layout is a private encoding detail; the codec treats it as an
// undifferentiated value.
func DescribeCluster(session *gocql.Session) ([]byte, error) {
	iter := session.Query(
		`SELECT keyspace_name, table_name, column_name, kind, type FROM system_schema.columns`,
	).Iter()

	var rows []tableSchema
	var ks, tbl, col, kind, typ string
	for iter.Scan(&ks, &tbl, &col, &kind, &typ) {
		if isSystemKeyspace(ks) {
			continue
		}
		rows = append(rows, tableSchema{Keyspace: ks, Table: tbl, Column: col, Kind: kind, Type: typ})
	}
	if err := iter.Close(); err != nil {
		return nil, wrapQueryErr("describe cluster", err)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rows); err != nil {
		return nil, fmt.Errorf("clusterdriver: encoding schema blob: %w", err)
	}
	return buf.Bytes(), nil
}

func isSystemKeyspace(ks string) bool {
	switch ks {
	case "system", "system_schema", "system_auth", "system_distributed", "system_traces":
		return true
	default:
		return false
	}
}

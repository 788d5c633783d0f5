// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package wire implements the Order/Result codec of the proxy protocol:
// a 4-byte tag, a big-endian uint32 length, and a payload the codec never
// interprets beyond its own framing fields.
package wire

import (
	"fmt"

	"github.com/snapwebsites/snapdbproxy/internal/wireerr"
)

// Consistency mirrors the cluster driver's consistency level enumeration.
type Consistency uint8

const (
	One Consistency = iota
	Two
	Three
	Quorum
	LocalQuorum
	EachQuorum
	All
	Any
)

// Shape is the caller's expected result shape.
type Shape uint8

const (
	ShapeSuccess Shape = iota
	ShapeRows
	ShapeDeclareCursor
	ShapeFetchCursor
	ShapeCloseCursor
	ShapeDescribeCluster
)

func (s Shape) pagedOrDeclared() bool {
	return s == ShapeDeclareCursor
}

func (s Shape) needsCursor() bool {
	return s == ShapeFetchCursor || s == ShapeCloseCursor
}

func (s Shape) needsColumnCount() bool {
	return s == ShapeRows || s == ShapeDeclareCursor
}

// Order is a single client request, as laid out by the CQLP frame payload.
type Order struct {
	Statement        string
	Parameters       [][]byte
	Consistency      Consistency
	HasTimestamp     bool
	Timestamp        int64
	HasPagingSize    bool
	PagingSize       uint32
	HasTimeout       bool
	TimeoutMS        uint32
	Shape            Shape
	CursorID         uint32 // valid only when Shape.needsCursor()
	ColumnCount      uint32 // valid only when Shape.needsColumnCount()
	Blocking         bool
	ClearSchemaCache bool
}

// Validate enforces the invariants attached to Order: the parameter count
// must match the statement's placeholder count. The timeout needs no check,
// since TimeoutMS is unsigned and cannot be negative.
func (o *Order) Validate() error {
	if got, want := len(o.Parameters), countPlaceholders(o.Statement); got != want {
		return wireerr.Parameter(fmt.Sprintf("parameter count %d does not match statement placeholder count %d", got, want))
	}
	return nil
}

func countPlaceholders(stmt string) int {
	n := 0
	for _, r := range stmt {
		if r == '?' {
			n++
		}
	}
	return n
}

const (
	flagBlocking = 1 << iota
	flagClearSchemaCache
	flagHasTimestamp
	flagHasPagingSize
	flagHasTimeout
)

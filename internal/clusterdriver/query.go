// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package clusterdriver

import (
	"github.com/gocql/gocql"
	"github.com/snapwebsites/snapdbproxy/internal/wire"
)

// bindArgs turns an Order's flat binary parameter list into the []any
// gocql.Query.Bind expects, one gocql.RawBytes per parameter. The driver
// and the codec both stay oblivious to what the bytes mean.
func bindArgs(params [][]byte) []interface{} {
	args := make([]interface{}, len(params))
	for i, p := range params {
		rb := gocql.RawBytes(p)
		args[i] = rb
	}
	return args
}

// buildQuery constructs the gocql.Query for o against session, applying
// consistency (forcing QUORUM when the order left it at the zero value),
// write timestamp and paging size.
func buildQuery(session *gocql.Session, o *wire.Order) *gocql.Query {
	q := session.Query(o.Statement, bindArgs(o.Parameters)...)
	q = q.Consistency(ToGocqlConsistency(o.Consistency, consistencyWasSet(o)))
	if o.HasTimestamp {
		q = q.WithTimestamp(o.Timestamp)
	}
	if o.HasPagingSize && o.PagingSize > 0 {
		q = q.PageSize(int(o.PagingSize))
	}
	return q
}

// consistencyWasSet reports whether the order's consistency byte was
// populated deliberately. The wire codec has no explicit "unset" marker
// for an enum field, so QUORUM is forced whenever the field carries its
// zero value (wire.One), since that is indistinguishable from "not set".
func consistencyWasSet(o *wire.Order) bool {
	return o.Consistency != wire.One
}

// ExecSuccess runs a non-row-returning order and reports only whether it
// succeeded.
func ExecSuccess(session *gocql.Session, o *wire.Order) error {
	q := buildQuery(session, o)
	if err := q.Exec(); err != nil {
		return wrapQueryErr(o.Statement, err)
	}
	return nil
}

// ExecRow runs an order expecting at most one row of o.ColumnCount values
// and returns its raw column bytes, or nil when the query produced no
// rows.
func ExecRow(session *gocql.Session, o *wire.Order) ([][]byte, error) {
	q := buildQuery(session, o)
	iter := q.Iter()

	row, _, err := scanOneRow(iter, int(o.ColumnCount))
	if err != nil {
		iter.Close()
		return nil, wrapQueryErr(o.Statement, err)
	}
	if err := iter.Close(); err != nil {
		return nil, wrapQueryErr(o.Statement, err)
	}
	return row, nil
}

// PagedQuery is a retained driver query backing one declared cursor. It
// holds the page state between Fetch calls the way the cursor registry's
// slot holds the cursor's driver query handle.
type PagedQuery struct {
	query       *gocql.Query
	columnCount int
	pageState   []byte
	exhausted   bool
}

// Declare executes the first page of a paged order and returns the raw
// column values for every row of that page, flattened in row-major order.
func Declare(session *gocql.Session, o *wire.Order) (*PagedQuery, [][]byte, error) {
	q := buildQuery(session, o)
	pq := &PagedQuery{query: q, columnCount: int(o.ColumnCount)}

	values, err := pq.fetchPage(nil)
	if err != nil {
		return nil, nil, wrapQueryErr(o.Statement, err)
	}
	return pq, values, nil
}

// Fetch returns the next page's rows, or an empty slice once the cursor's
// last page has already been consumed.
func (pq *PagedQuery) Fetch() ([][]byte, error) {
	if pq.exhausted {
		return nil, nil
	}
	values, err := pq.fetchPage(pq.pageState)
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (pq *PagedQuery) fetchPage(pageState []byte) ([][]byte, error) {
	iter := pq.query.PageState(pageState).Iter()

	var values [][]byte
	for {
		row, ok, err := scanOneRow(iter, pq.columnCount)
		if err != nil {
			iter.Close()
			return nil, err
		}
		if !ok {
			break
		}
		values = append(values, row...)
	}

	nextState := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, err
	}

	pq.pageState = nextState
	pq.exhausted = len(nextState) == 0
	return values, nil
}

// Release marks the cursor's driver query handle as no longer usable. It
// does not touch the session, which outlives any individual cursor.
func (pq *PagedQuery) Release() {
	pq.query = nil
}

func scanOneRow(iter *gocql.Iter, columnCount int) ([][]byte, bool, error) {
	if columnCount == 0 {
		return nil, false, nil
	}
	dest := make([]interface{}, columnCount)
	raws := make([]gocql.RawBytes, columnCount)
	for i := range raws {
		dest[i] = &raws[i]
	}
	if !iter.Scan(dest...) {
		return nil, false, nil
	}
	row := make([][]byte, columnCount)
	for i, r := range raws {
		row[i] = []byte(r)
	}
	return row, true, nil
}

// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"errors"

	"github.com/snapwebsites/snapdbproxy/internal/wireerr"
)

// Result is a single reply, as laid out by the SUCS/EROR frame payload.
//
// On success, Values is a flat sequence the caller reshapes using the
// column count it already knows: for declare-cursor, the first value is
// the 4-byte cursor identifier encoded the same way as any other value;
// for describe-cluster, Values has exactly one entry (the schema blob).
type Result struct {
	Success bool
	Values  [][]byte

	ErrKind wireerr.Kind
	ErrMsg  string
}

// OK builds a success result carrying the given flat value sequence.
func OK(values ...[]byte) Result {
	return Result{Success: true, Values: values}
}

// Fail builds a failure result from an error, preserving its Kind when err
// is (or wraps) a *wireerr.Error, and defaulting to KindProtocol otherwise.
func Fail(err error) Result {
	var we *wireerr.Error
	if errors.As(err, &we) {
		return Result{ErrKind: we.Kind, ErrMsg: we.Error()}
	}
	return Result{ErrKind: wireerr.KindProtocol, ErrMsg: err.Error()}
}

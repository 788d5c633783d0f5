// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/snapwebsites/snapdbproxy/internal/wireerr"
)

// Tag is the 4-byte frame command carried ahead of every payload.
type Tag [4]byte

var (
	TagOrder   = Tag{'C', 'Q', 'L', 'P'}
	TagSuccess = Tag{'S', 'U', 'C', 'S'}
	TagFailure = Tag{'E', 'R', 'O', 'R'}
)

func (t Tag) String() string { return string(t[:]) }

// frameReader is the minimal blocking contract the codec needs: fill buf
// entirely or fail. transport.Stream satisfies it.
type frameReader interface {
	Read(buf []byte) (int, error)
}

// frameWriter is the minimal blocking contract for sending a frame.
type frameWriter interface {
	Write(buf []byte) (int, error)
}

// maxFrameLen guards against a corrupt or hostile length field causing an
// unbounded allocation.
const maxFrameLen = 64 << 20

// readFrame reads one tag+length+payload frame.
func readFrame(r frameReader) (Tag, []byte, error) {
	var header [8]byte
	if _, err := r.Read(header[:]); err != nil {
		return Tag{}, nil, err
	}

	var tag Tag
	copy(tag[:], header[:4])
	length := binary.BigEndian.Uint32(header[4:8])
	if length > maxFrameLen {
		return Tag{}, nil, wireerr.Protocol(fmt.Sprintf("frame length %d exceeds maximum %d", length, maxFrameLen))
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := r.Read(payload); err != nil {
			return Tag{}, nil, err
		}
	}
	return tag, payload, nil
}

// writeFrame sends one tag+length+payload frame.
func writeFrame(w frameWriter, tag Tag, payload []byte) error {
	header := make([]byte, 8, 8+len(payload))
	copy(header[:4], tag[:])
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))
	header = append(header, payload...)
	_, err := w.Write(header)
	return err
}

// WriteOrder encodes and sends o as a CQLP frame.
func WriteOrder(w frameWriter, o *Order) error {
	payload, err := encodeOrder(o)
	if err != nil {
		return err
	}
	return writeFrame(w, TagOrder, payload)
}

// ReadOrder reads one frame and decodes it as an Order. The tag must be
// CQLP; any other tag is a protocol error.
func ReadOrder(r frameReader) (*Order, error) {
	tag, payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	if tag != TagOrder {
		return nil, wireerr.Protocol(fmt.Sprintf("expected %s frame, got %s", TagOrder, tag))
	}
	return decodeOrder(payload)
}

// WriteResult encodes and sends res as a SUCS or EROR frame.
func WriteResult(w frameWriter, res *Result) error {
	tag := TagSuccess
	if !res.Success {
		tag = TagFailure
	}
	return writeFrame(w, tag, encodeResult(res))
}

// ReadResult reads one frame and decodes it as a Result. The tag must be
// SUCS or EROR.
func ReadResult(r frameReader) (*Result, error) {
	tag, payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagSuccess:
		return decodeResult(true, payload)
	case TagFailure:
		return decodeResult(false, payload)
	default:
		return nil, wireerr.Protocol(fmt.Sprintf("expected %s or %s frame, got %s", TagSuccess, TagFailure, tag))
	}
}

func encodeOrder(o *Order) ([]byte, error) {
	var buf bytes.Buffer
	writeLenPrefixed(&buf, []byte(o.Statement))

	var flags byte
	if o.Blocking {
		flags |= flagBlocking
	}
	if o.ClearSchemaCache {
		flags |= flagClearSchemaCache
	}
	if o.HasTimestamp {
		flags |= flagHasTimestamp
	}
	if o.HasPagingSize {
		flags |= flagHasPagingSize
	}
	if o.HasTimeout {
		flags |= flagHasTimeout
	}
	buf.WriteByte(flags)
	buf.WriteByte(byte(o.Consistency))

	if o.HasTimestamp {
		writeUint64(&buf, uint64(o.Timestamp))
	}
	if o.HasPagingSize {
		writeUint32(&buf, o.PagingSize)
	}
	if o.HasTimeout {
		writeUint32(&buf, o.TimeoutMS)
	}

	buf.WriteByte(byte(o.Shape))

	if o.Shape.needsCursor() {
		writeUint32(&buf, o.CursorID)
	}
	if o.Shape.needsColumnCount() {
		writeUint32(&buf, o.ColumnCount)
	}

	writeUint32(&buf, uint32(len(o.Parameters)))
	for _, p := range o.Parameters {
		writeLenPrefixed(&buf, p)
	}

	return buf.Bytes(), nil
}

func decodeOrder(payload []byte) (*Order, error) {
	r := bytes.NewReader(payload)

	stmt, err := readLenPrefixed(r)
	if err != nil {
		return nil, wireerr.Protocol("truncated order: statement: " + err.Error())
	}

	flags, err := r.ReadByte()
	if err != nil {
		return nil, wireerr.Protocol("truncated order: flags: " + err.Error())
	}
	consistency, err := r.ReadByte()
	if err != nil {
		return nil, wireerr.Protocol("truncated order: consistency: " + err.Error())
	}

	o := &Order{
		Statement:        string(stmt),
		Blocking:         flags&flagBlocking != 0,
		ClearSchemaCache: flags&flagClearSchemaCache != 0,
		HasTimestamp:     flags&flagHasTimestamp != 0,
		HasPagingSize:    flags&flagHasPagingSize != 0,
		HasTimeout:       flags&flagHasTimeout != 0,
		Consistency:      Consistency(consistency),
	}

	if o.HasTimestamp {
		ts, err := readUint64(r)
		if err != nil {
			return nil, wireerr.Protocol("truncated order: timestamp: " + err.Error())
		}
		o.Timestamp = int64(ts)
	}
	if o.HasPagingSize {
		if o.PagingSize, err = readUint32(r); err != nil {
			return nil, wireerr.Protocol("truncated order: paging size: " + err.Error())
		}
	}
	if o.HasTimeout {
		if o.TimeoutMS, err = readUint32(r); err != nil {
			return nil, wireerr.Protocol("truncated order: timeout: " + err.Error())
		}
	}

	shape, err := r.ReadByte()
	if err != nil {
		return nil, wireerr.Protocol("truncated order: shape: " + err.Error())
	}
	o.Shape = Shape(shape)

	if o.Shape.needsCursor() {
		if o.CursorID, err = readUint32(r); err != nil {
			return nil, wireerr.Protocol("truncated order: cursor id: " + err.Error())
		}
	}
	if o.Shape.needsColumnCount() {
		if o.ColumnCount, err = readUint32(r); err != nil {
			return nil, wireerr.Protocol("truncated order: column count: " + err.Error())
		}
	}

	paramCount, err := readUint32(r)
	if err != nil {
		return nil, wireerr.Protocol("truncated order: parameter count: " + err.Error())
	}
	o.Parameters = make([][]byte, 0, paramCount)
	for i := uint32(0); i < paramCount; i++ {
		p, err := readLenPrefixed(r)
		if err != nil {
			return nil, wireerr.Protocol(fmt.Sprintf("truncated order: parameter %d: %s", i, err))
		}
		o.Parameters = append(o.Parameters, p)
	}

	return o, nil
}

func encodeResult(res *Result) []byte {
	var buf bytes.Buffer
	if res.Success {
		buf.WriteByte(1)
		for _, v := range res.Values {
			writeLenPrefixed(&buf, v)
		}
	} else {
		buf.WriteByte(0)
		writeUint32(&buf, uint32(res.ErrKind))
		writeLenPrefixed(&buf, []byte(res.ErrMsg))
	}
	return buf.Bytes()
}

func decodeResult(fromSuccessTag bool, payload []byte) (*Result, error) {
	r := bytes.NewReader(payload)

	successByte, err := r.ReadByte()
	if err != nil {
		return nil, wireerr.Protocol("truncated result: success flag: " + err.Error())
	}
	success := successByte != 0
	if success != fromSuccessTag {
		return nil, wireerr.Protocol("result success flag does not match frame tag")
	}

	res := &Result{Success: success}
	if success {
		for r.Len() > 0 {
			v, err := readLenPrefixed(r)
			if err != nil {
				return nil, wireerr.Protocol("truncated result value: " + err.Error())
			}
			res.Values = append(res.Values, v)
		}
		return res, nil
	}

	kind, err := readUint32(r)
	if err != nil {
		return nil, wireerr.Protocol("truncated result: error kind: " + err.Error())
	}
	res.ErrKind = wireerr.Kind(kind)

	msg, err := readLenPrefixed(r)
	if err != nil {
		return nil, wireerr.Protocol("truncated result: error message: " + err.Error())
	}
	res.ErrMsg = string(msg)

	return res, nil
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	writeUint32(buf, uint32(len(data)))
	buf.Write(data)
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if uint32(r.Len()) < n {
		return nil, io.ErrUnexpectedEOF
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

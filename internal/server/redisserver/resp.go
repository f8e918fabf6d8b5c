package redisserver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxMessageSize is the default capacity of the per-connection
// receive buffer. A request that does not fit in the buffer is rejected
// rather than grown, which bounds memory per connection.
const DefaultMaxMessageSize = 512

// Protocol errors. ErrIncomplete is not terminal: it signals that the
// buffer holds a partial frame and the caller must read more bytes and
// retry. Every other error is fatal to the owning connection.
var (
	ErrIncomplete    = errors.New("resp: incomplete frame")
	ErrMessageTooBig = errors.New("resp: message exceeds receive buffer capacity")
	ErrUnhandledType = errors.New("resp: unhandled data type")
	ErrArrayLength   = errors.New("resp: array element count is not a valid integer")
	ErrBulkLength    = errors.New("resp: bulk string length is not a valid integer")
)

// ValueType tags a protocol value.
type ValueType byte

// Decoded request values are always arrays and bulk strings. The other
// types exist for building responses; the parser never produces them.
const (
	TypeBulkString ValueType = iota
	TypeArray
	TypeSimpleString
	TypeError
	TypeInteger
	TypeNullBulkString
	TypeNullArray
)

// Value is one protocol value, decoded from or encoded to the wire.
type Value struct {
	Type  ValueType
	Bytes []byte // BulkString payload; SimpleString and Error text
	Int   int64
	Array []Value
}

// BulkString constructs a bulk string value over b.
func BulkString(b []byte) Value {
	return Value{Type: TypeBulkString, Bytes: b}
}

// ArrayOf constructs an array value from its elements.
func ArrayOf(elems ...Value) Value {
	return Value{Type: TypeArray, Array: elems}
}

var crlf = []byte("\r\n")

// TryParse attempts to extract exactly one complete top-level value
// from buf, returning the value and the number of bytes consumed.
//
// ErrIncomplete means buf holds a partial frame; the caller appends
// more bytes and retries. Framing is all-or-nothing: a partially
// received array is never returned, and nothing is consumed until the
// whole frame is present.
//
// Consumed-byte accounting follows the framing rules: a bulk string
// consumes its length prefix, the prefix CRLF and the payload (the
// payload's trailing CRLF is accounted by the enclosing array, which
// adds 2 per element); an array consumes its own prefix plus each
// element's consumption.
func TryParse(buf []byte) (Value, int, error) {
	end := bytes.Index(buf, crlf)
	if end < 0 {
		return Value{}, 0, ErrIncomplete
	}

	tag := buf[0]

	var (
		v   Value
		n   int
		err error
	)
	switch tag {
	case '*':
		v, n, err = parseArray(buf[1:end], buf[end+2:])
	case '$':
		v, n, err = parseBulkString(buf[1:end], buf[end+2:])
	default:
		return Value{}, 0, fmt.Errorf("%w: %q", ErrUnhandledType, tag)
	}
	if err != nil {
		return Value{}, 0, err
	}

	// The frame's own prefix and CRLF.
	return v, n + end + 2, nil
}

// parseBulkString decodes "$<n>\r\n<n bytes>" given the prefix digits
// and the bytes following the prefix CRLF. The payload is copied into
// an owned buffer; until then all slices are views into the caller's
// receive buffer.
func parseBulkString(prefix, rest []byte) (Value, int, error) {
	n, err := strconv.Atoi(string(prefix))
	if err != nil || n < 0 {
		return Value{}, 0, fmt.Errorf("%w: %q", ErrBulkLength, string(prefix))
	}
	if len(rest) < n {
		return Value{}, 0, ErrIncomplete
	}

	payload := make([]byte, n)
	copy(payload, rest[:n])
	return Value{Type: TypeBulkString, Bytes: payload}, n, nil
}

// parseArray decodes "*<n>\r\n" followed by n recursively parsed
// elements. Each element's consumption is its own plus 2 for the
// trailing CRLF that bulk strings carry after their payload.
func parseArray(prefix, rest []byte) (Value, int, error) {
	count, err := strconv.Atoi(string(prefix))
	if err != nil {
		return Value{}, 0, fmt.Errorf("%w: %q", ErrArrayLength, string(prefix))
	}

	consumed := 0
	elems := make([]Value, 0, max(count, 0))
	for i := 0; i < count; i++ {
		if !bytes.Contains(rest, crlf) {
			return Value{}, 0, ErrIncomplete
		}
		elem, n, err := TryParse(rest)
		if err != nil {
			return Value{}, 0, err
		}
		if len(rest) < n+2 {
			// Element parsed but its trailing CRLF has not arrived.
			return Value{}, 0, ErrIncomplete
		}
		consumed += n + 2
		elems = append(elems, elem)
		rest = rest[n+2:]
	}

	return Value{Type: TypeArray, Array: elems}, consumed, nil
}

// WriteValue encodes v to w, depth-first for arrays, preserving order.
func WriteValue(w *bufio.Writer, v Value) error {
	switch v.Type {
	case TypeSimpleString:
		return WriteSimpleString(w, string(v.Bytes))
	case TypeError:
		return WriteError(w, string(v.Bytes))
	case TypeInteger:
		return WriteInteger(w, v.Int)
	case TypeBulkString:
		if v.Bytes == nil {
			// Distinguish the empty bulk string from the nil one.
			return WriteBulk(w, []byte{})
		}
		return WriteBulk(w, v.Bytes)
	case TypeNullBulkString:
		return WriteNullBulk(w)
	case TypeNullArray:
		_, err := w.WriteString("*-1\r\n")
		return err
	case TypeArray:
		if err := WriteArrayHeader(w, len(v.Array)); err != nil {
			return err
		}
		for _, e := range v.Array {
			if err := WriteValue(w, e); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnhandledType, v.Type)
	}
}

func WriteSimpleString(w *bufio.Writer, s string) error {
	_, err := w.WriteString("+" + s + "\r\n")
	return err
}

func WriteError(w *bufio.Writer, s string) error {
	_, err := w.WriteString("-" + s + "\r\n")
	return err
}

func WriteInteger(w *bufio.Writer, n int64) error {
	_, err := w.WriteString(":" + strconv.FormatInt(n, 10) + "\r\n")
	return err
}

func WriteNullBulk(w *bufio.Writer) error {
	_, err := w.WriteString("$-1\r\n")
	return err
}

func WriteBulk(w *bufio.Writer, b []byte) error {
	if b == nil {
		return WriteNullBulk(w)
	}
	if _, err := w.WriteString("$" + strconv.Itoa(len(b)) + "\r\n"); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}

func WriteBulkString(w *bufio.Writer, s string) error {
	return WriteBulk(w, []byte(s))
}

func WriteArrayHeader(w *bufio.Writer, n int) error {
	_, err := w.WriteString("*" + strconv.Itoa(n) + "\r\n")
	return err
}

// normalizeCommandName uppercases an ASCII command token without
// allocating for already uppercased input.
func normalizeCommandName(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if bytes.ContainsAny(b, "abcdefghijklmnopqrstuvwxyz") {
		return strings.ToUpper(string(b))
	}
	return string(b)
}

package flatshelf

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrKeyNotFound         = errors.New("key not found")
	ErrPathNotFound        = errors.New("path not found")
	ErrNotInterior         = errors.New("not a mapping")
	ErrInvalidKeyComponent = errors.New("invalid key component")
	ErrUnsupportedValue    = errors.New("unsupported value")
	ErrNotComparable       = errors.New("set element is not comparable")
	ErrIndexOutOfRange     = errors.New("index out of range")
	ErrStaleNode           = errors.New("node no longer exists")
	ErrClosed              = errors.New("store closed")
)

// KeyError describes a failed operation on a particular key path.
type KeyError struct {
	Op  string
	Key string
	Msg string
	Err error
}

func keyErrf(op, key string, err error, format string, args ...any) error {
	return &KeyError{Op: op, Key: key, Msg: fmt.Sprintf(format, args...), Err: err}
}

func keyErr(op, key string, err error) error {
	return &KeyError{Op: op, Key: key, Err: err}
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

func (e *KeyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Op)
	if e.Key != "" {
		buf.WriteByte(' ')
		buf.WriteString(fmt.Sprintf("%q", e.Key))
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

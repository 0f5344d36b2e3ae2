package raster

import (
	"errors"
	"fmt"
)

// Kind classifies a decode failure. A Kind is itself an error so it can be
// used as an errors.Is target:
//
//	if errors.Is(err, raster.Truncated) { ... }
type Kind uint8

const (
	_ Kind = iota
	BadSignature
	UnsupportedVariant
	UnsupportedDepth
	UnsupportedColorMode
	UnsupportedCompression
	Truncated
	SizeOverflow
	DelegateFailed
	Malformed
)

var kindNames = [...]string{
	BadSignature:           "bad signature",
	UnsupportedVariant:     "unsupported variant",
	UnsupportedDepth:       "unsupported depth",
	UnsupportedColorMode:   "unsupported color mode",
	UnsupportedCompression: "unsupported compression",
	Truncated:              "truncated",
	SizeOverflow:           "size overflow",
	DelegateFailed:         "delegate failed",
	Malformed:              "malformed",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

func (k Kind) Error() string { return k.String() }

// Unsupported reports whether k names a valid but unimplemented feature.
func (k Kind) Unsupported() bool {
	switch k {
	case UnsupportedVariant, UnsupportedDepth, UnsupportedColorMode, UnsupportedCompression:
		return true
	}
	return false
}

// Error is returned by every decoder in this module. Err is set when the
// failure originates in a collaborator, such as the JPEG delegate.
type Error struct {
	Format Format
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Format.String() + ": " + e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Errorf builds an *Error with a formatted detail message.
func Errorf(f Format, k Kind, format string, args ...interface{}) *Error {
	return &Error{Format: f, Kind: k, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around a collaborator failure.
func Wrap(f Format, k Kind, err error, detail string) *Error {
	return &Error{Format: f, Kind: k, Detail: detail, Err: err}
}

// WithFormat stamps f on err if err is an *Error that does not carry a
// format yet. Lower layers such as the byte cursor do not know which
// container they are reading.
func WithFormat(f Format, err error) error {
	var re *Error
	if !errors.As(err, &re) || re.Format != Unknown {
		return err
	}
	stamped := *re
	stamped.Format = f
	return &stamped
}

// KindOf returns the Kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}

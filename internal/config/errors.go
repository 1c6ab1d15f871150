package config

import (
	"errors"
	"fmt"
)

// ErrNoConfiguration is returned when the configuration source has no
// value at all. This is not a user error; it means debugging was never
// requested and the caller should leave every feature disabled.
var ErrNoConfiguration = errors.New("no configuration requested")

// MalformedNumberError indicates that the text after '=' could not be
// parsed as a non-negative base-10 integer, including trailing garbage
// after an otherwise valid number.
type MalformedNumberError struct {
	Option string
	Text   string
}

func (e *MalformedNumberError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("bad value for option '%s'", e.Option)
	}
	return fmt.Sprintf("bad value for option '%s': %s", e.Option, e.Text)
}

// NegativeValueError indicates a syntactically valid but negative value.
type NegativeValueError struct {
	Option string
	Value  int64
}

func (e *NegativeValueError) Error() string {
	return fmt.Sprintf("bad value for option '%s', value cannot be negative: %d", e.Option, e.Value)
}

// RangeError indicates a value outside the feature's inclusive bounds.
// Below reports whether the value fell under the minimum; Bound is the
// violated limit.
type RangeError struct {
	Option string
	Value  uint64
	Bound  uint64
	Below  bool
}

func (e *RangeError) Error() string {
	if e.Below {
		return fmt.Sprintf("bad value for option '%s', value must be >= %d: %d", e.Option, e.Bound, e.Value)
	}
	return fmt.Sprintf("bad value for option '%s', value must be <= %d: %d", e.Option, e.Bound, e.Value)
}

// UnexpectedValueError indicates a value supplied to an option that does
// not take one.
type UnexpectedValueError struct {
	Option string
}

func (e *UnexpectedValueError) Error() string {
	return fmt.Sprintf("value set for option '%s' which does not take a value", e.Option)
}

// UnknownOptionError indicates an option name missing from the feature
// table.
type UnknownOptionError struct {
	Option string
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("unknown option %s", e.Option)
}

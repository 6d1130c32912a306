// Package codec converts between JSON values and DBus wire values,
// driven entirely by a signature string read at request time rather
// than by any compile-time Go type.
package codec

import "fmt"

// TypeMismatchError reports that a JSON value's shape is incompatible
// with the bus type code it was matched against.
type TypeMismatchError struct {
	Type   string
	Reason string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch encoding %q: %s", e.Type, e.Reason)
}

func mismatch(typeCode string, reason string, args ...any) error {
	return &TypeMismatchError{typeCode, fmt.Sprintf(reason, args...)}
}

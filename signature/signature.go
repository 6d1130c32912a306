// Package signature splits a DBus type signature string into its
// top-level type codes.
//
// A DBus signature is a concatenation of complete types, e.g. "aia{sv}"
// is the array-of-int32 type "ai" followed by the array-of-string-to-
// variant-dict type "a{sv}". Split walks the string once, tracking
// container depth, and returns the ordered list of top-level codes.
package signature

import (
	"errors"
	"fmt"
)

// InvalidSignatureError reports that a signature string is malformed:
// unbalanced brackets, a trailing array code with no element type, or
// an unknown type code.
type InvalidSignatureError struct {
	Signature string
	Reason    string
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("invalid signature %q: %s", e.Signature, e.Reason)
}

var basicCodes = map[byte]bool{
	'y': true, 'b': true, 'n': true, 'q': true, 'i': true, 'u': true,
	'x': true, 't': true, 'd': true, 's': true, 'o': true, 'g': true,
	'v': true,
}

// Split returns the ordered top-level type codes of sig. Each
// returned element is itself a complete, independently splittable
// signature: a single basic type code, or a container ('(', '{', or
// 'a') together with everything up to its matching close (for 'a',
// exactly one following complete type).
//
// Split("") returns an empty, non-nil slice.
func Split(sig string) ([]string, error) {
	parts := []string{}
	for len(sig) > 0 {
		part, rest, err := splitOne(sig)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		sig = rest
	}
	return parts, nil
}

// splitOne consumes exactly one complete type from the front of sig,
// and returns it along with whatever remains.
func splitOne(sig string) (part, rest string, err error) {
	if sig == "" {
		return "", "", &InvalidSignatureError{sig, "empty signature"}
	}

	switch c := sig[0]; {
	case c == 'a':
		elem, rest, err := splitOne(sig[1:])
		if err != nil {
			if len(sig) == 1 {
				return "", "", &InvalidSignatureError{sig, "array code 'a' with no following type"}
			}
			return "", "", err
		}
		return "a" + elem, rest, nil
	case c == '(':
		return splitContainer(sig, '(', ')')
	case c == '{':
		return splitContainer(sig, '{', '}')
	case basicCodes[c]:
		return sig[:1], sig[1:], nil
	default:
		return "", "", &InvalidSignatureError{sig, fmt.Sprintf("unknown type code %q", c)}
	}
}

// splitContainer consumes a bracketed container starting at sig[0]
// (which must equal open), tracking nested depth until the matching
// close is found.
func splitContainer(sig string, open, close byte) (part, rest string, err error) {
	depth := 0
	for i := 0; i < len(sig); i++ {
		switch sig[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return sig[:i+1], sig[i+1:], nil
			}
		}
	}
	return "", "", &InvalidSignatureError{sig, fmt.Sprintf("missing closing %q", close)}
}

// Validate reports whether sig is a well-formed concatenation of
// complete types, without returning the split.
func Validate(sig string) error {
	_, err := Split(sig)
	return err
}

// Is reports whether err is (or wraps) an [InvalidSignatureError].
func Is(err error) bool {
	var e *InvalidSignatureError
	return errors.As(err, &e)
}

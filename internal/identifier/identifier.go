// Package identifier computes and generates check digits for the four
// security identifier formats carried by vendor feeds: FIGI, CUSIP, SEDOL
// and ISIN.
//
// Each format is a fixed-length body followed by a single decimal check
// digit. [ComputeCheckDigit] derives the digit from a body and
// [Generate] produces random identifiers whose check digit is valid.
//
// Format checks live in the rules package, which matches identifiers
// against fixed patterns and may recompute check digits through this
// package.
package identifier

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names an identifier format.
type Kind string

const (
	FIGI  Kind = "FIGI"
	CUSIP Kind = "CUSIP"
	SEDOL Kind = "SEDOL"
	ISIN  Kind = "ISIN"
)

// Kinds lists every supported format in key-column order.
var Kinds = []Kind{FIGI, CUSIP, SEDOL, ISIN}

// ErrUnknownKind is returned for a Kind outside [Kinds].
var ErrUnknownKind = errors.New("unknown identifier kind")

// ErrBodyLength is returned when a body has the wrong number of characters.
var ErrBodyLength = errors.New("invalid identifier body length")

// AlphabetError reports a character outside an identifier's allowed alphabet.
// It is fatal for the computation that produced it.
type AlphabetError struct {
	Kind Kind
	Char rune
	Pos  int // 0-indexed position within the body
}

func (e *AlphabetError) Error() string {
	return fmt.Sprintf("invalid character %q at position %d in %s", e.Char, e.Pos+1, e.Kind)
}

// ParseKind resolves a case-insensitive format name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// BodyLen returns the number of characters preceding the check digit.
func BodyLen(k Kind) int {
	switch k {
	case FIGI:
		return 11
	case CUSIP:
		return 8
	case SEDOL:
		return 6
	case ISIN:
		return 11
	default:
		return 0
	}
}

// ComputeCheckDigit returns the check digit ('0'-'9') for body.
// body must be exactly BodyLen(k) characters.
func ComputeCheckDigit(k Kind, body string) (byte, error) {
	n := BodyLen(k)
	if n == 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	if len(body) != n {
		return 0, fmt.Errorf("%w: %s body must be %d characters, got %d", ErrBodyLength, k, n, len(body))
	}

	var d int
	var err error
	switch k {
	case FIGI:
		d, err = figiCheck(body)
	case CUSIP:
		d, err = cusipCheck(body)
	case SEDOL:
		d, err = sedolCheck(body)
	case ISIN:
		d, err = isinCheck(body)
	}
	if err != nil {
		return 0, err
	}
	return byte('0' + d), nil
}

// Complete appends the computed check digit to body.
func Complete(k Kind, body string) (string, error) {
	d, err := ComputeCheckDigit(k, body)
	if err != nil {
		return "", err
	}
	return body + string(d), nil
}

// alnumValue maps 0-9 to 0-9 and A-Z to 10-35.
func alnumValue(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}


package dice

import (
	"strconv"
)

// Parser consumes a prefix of input and returns the remainder with the value.
// On failure the remainder is the input it was given.
type Parser[T any] func(input string) (string, T, error)

// ParseUnsignedInteger consumes one or more leading decimal digits.
//
// No sign, grouping or leading-zero rules apply. A digit run that does not fit
// in a uint64 is malformed at the start of the run.
func ParseUnsignedInteger(input string) (string, uint64, error) {
	n := 0
	for n < len(input) && isDigit(input[n]) {
		n++
	}
	if n == 0 {
		return input, 0, expected(input)
	}
	value, err := strconv.ParseUint(input[:n], 10, 64)
	if err != nil {
		return input, 0, malformed(input)
	}
	return input[n:], value, nil
}

// Trimmed wraps p so that whitespace around it is consumed and discarded.
func Trimmed[T any](p Parser[T]) Parser[T] {
	return func(input string) (string, T, error) {
		rest, value, err := p(skipSpace(input))
		if err != nil {
			var zero T
			return input, zero, err
		}
		return skipSpace(rest), value, nil
	}
}

func skipSpace(input string) string {
	return input[spaceRun(input):]
}

// spaceRun returns the length of the leading whitespace run.
func spaceRun(input string) int {
	n := 0
	for n < len(input) && isSpace(input[n]) {
		n++
	}
	return n
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// hasPrefixFold reports whether input starts with the ASCII letter lower,
// ignoring case.
func hasPrefixFold(input string, lower byte) bool {
	return input != "" && (input[0] == lower || input[0] == lower-('a'-'A'))
}

package dice

import (
	"fmt"
)

// ErrorKind classifies a parse or evaluation failure.
type ErrorKind int

const (
	KindUnspecified ErrorKind = iota
	KindMalformedDiceSpecifier
	KindTrailingInput
	KindIncompleteInput
	// KindHardParseFailure is a failure no rule can recover from. No rule of
	// the current grammar produces it, but transports still map it.
	KindHardParseFailure
	KindInvalidDie
	KindFilterOutOfRange
	KindTotalOverflow
	KindTooManyDice
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformedDiceSpecifier:
		return "MalformedDiceSpecifier"
	case KindTrailingInput:
		return "TrailingInput"
	case KindIncompleteInput:
		return "IncompleteInput"
	case KindHardParseFailure:
		return "HardParseFailure"
	case KindInvalidDie:
		return "InvalidDie"
	case KindFilterOutOfRange:
		return "FilterOutOfRange"
	case KindTotalOverflow:
		return "TotalOverflow"
	case KindTooManyDice:
		return "TooManyDice"
	default:
		return "Unspecified"
	}
}

// Error describes why a command could not be parsed or evaluated.
//
// Input holds the unconsumed text at the failure point for parse errors.
// Detail holds a short description for evaluation errors.
type Error struct {
	Kind   ErrorKind
	Input  string
	Detail string
}

// Error renders the message relayed to the user.
func (e *Error) Error() string {
	if e == nil {
		return "dice error"
	}
	switch e.Kind {
	case KindMalformedDiceSpecifier:
		return fmt.Sprintf("Error parsing roll command: %s", e.Input)
	case KindTrailingInput:
		return fmt.Sprintf("Error, unexpected character: %s", e.Input)
	case KindIncompleteInput:
		return "Error, failed to parse roll command: Incomplete expression"
	case KindHardParseFailure:
		return fmt.Sprintf("Failure to parse roll command: %s", e.Input)
	case KindInvalidDie:
		return fmt.Sprintf("Error, invalid die: %s has no faces", e.Detail)
	case KindFilterOutOfRange:
		return fmt.Sprintf("Error, filter out of range: %s", e.Detail)
	case KindTotalOverflow:
		return "Error, roll total overflows"
	case KindTooManyDice:
		return fmt.Sprintf("Error, too many dice: %s", e.Detail)
	default:
		return "Error, unknown roll failure"
	}
}

// Is reports whether target is a dice error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks. Only the Kind is compared.
var (
	ErrMalformedDiceSpecifier = &Error{Kind: KindMalformedDiceSpecifier}
	ErrTrailingInput          = &Error{Kind: KindTrailingInput}
	ErrIncompleteInput        = &Error{Kind: KindIncompleteInput}
	ErrHardParseFailure       = &Error{Kind: KindHardParseFailure}
	ErrInvalidDie             = &Error{Kind: KindInvalidDie}
	ErrFilterOutOfRange       = &Error{Kind: KindFilterOutOfRange}
	ErrTotalOverflow          = &Error{Kind: KindTotalOverflow}
	ErrTooManyDice            = &Error{Kind: KindTooManyDice}
)

// errNoMatch signals that an optional rule did not start, so the caller may
// try an alternative. It never escapes the package.
var errNoMatch = &Error{Kind: KindUnspecified}

func malformed(input string) error {
	return &Error{Kind: KindMalformedDiceSpecifier, Input: input}
}

func incomplete(input string) error {
	return &Error{Kind: KindIncompleteInput, Input: input}
}

// expected reports a missing mandatory token: incomplete when input ran out,
// malformed otherwise.
func expected(input string) error {
	if input == "" {
		return incomplete(input)
	}
	return malformed(input)
}

// Package errors provides coded domain errors that travel across RPC
// boundaries with localized messages.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Notation errors
	CodeDiceMissing          Code = "DICE_MISSING"
	CodeDiceMalformed        Code = "DICE_MALFORMED_SPECIFIER"
	CodeDiceTrailingInput    Code = "DICE_TRAILING_INPUT"
	CodeDiceIncomplete       Code = "DICE_INCOMPLETE_EXPRESSION"
	CodeDiceParseFailure     Code = "DICE_PARSE_FAILURE"
	CodeDiceInvalidDie       Code = "DICE_INVALID_DIE"
	CodeDiceFilterOutOfRange Code = "DICE_FILTER_OUT_OF_RANGE"

	// Evaluation limits
	CodeDiceTotalOverflow Code = "DICE_TOTAL_OVERFLOW"
	CodeDiceTooMany       Code = "DICE_TOO_MANY_DICE"
	CodeDiceOutputTooLong Code = "DICE_OUTPUT_TOO_LONG"

	// Random/seed errors
	CodeSeedInvalid Code = "SEED_INVALID"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - the notation or seed cannot be used as given
	case CodeDiceMissing,
		CodeDiceMalformed,
		CodeDiceTrailingInput,
		CodeDiceIncomplete,
		CodeDiceParseFailure,
		CodeDiceInvalidDie,
		CodeDiceFilterOutOfRange,
		CodeDiceTotalOverflow,
		CodeSeedInvalid:
		return codes.InvalidArgument

	// ResourceExhausted - the roll is valid but exceeds service limits
	case CodeDiceTooMany,
		CodeDiceOutputTooLong:
		return codes.ResourceExhausted

	default:
		return codes.Internal
	}
}

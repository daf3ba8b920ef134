package dice

import (
	"errors"

	"github.com/louisbranch/dicebot/internal/dice"
	apperrors "github.com/louisbranch/dicebot/internal/platform/errors"
	"github.com/louisbranch/dicebot/internal/platform/errors/i18n"
)

var diceCodes = map[dice.ErrorKind]apperrors.Code{
	dice.KindMalformedDiceSpecifier: apperrors.CodeDiceMalformed,
	dice.KindTrailingInput:          apperrors.CodeDiceTrailingInput,
	dice.KindIncompleteInput:        apperrors.CodeDiceIncomplete,
	dice.KindHardParseFailure:       apperrors.CodeDiceParseFailure,
	dice.KindInvalidDie:             apperrors.CodeDiceInvalidDie,
	dice.KindFilterOutOfRange:       apperrors.CodeDiceFilterOutOfRange,
	dice.KindTotalOverflow:          apperrors.CodeDiceTotalOverflow,
	dice.KindTooManyDice:            apperrors.CodeDiceTooMany,
}

// domainError converts request and engine failures into coded errors whose
// metadata feeds the localized templates.
func domainError(err error) *apperrors.Error {
	var diceErr *dice.Error
	var seedErr *invalidSeedError
	switch {
	case errors.As(err, &diceErr):
		code, ok := diceCodes[diceErr.Kind]
		if !ok {
			code = apperrors.CodeUnknown
		}
		return apperrors.WrapWithMetadata(code, diceErr.Error(), map[string]string{
			"Input":  diceErr.Input,
			"Detail": diceErr.Detail,
		}, err)
	case errors.Is(err, errNotationMissing):
		return apperrors.Wrap(apperrors.CodeDiceMissing, err.Error(), err)
	case errors.As(err, &seedErr):
		return apperrors.WrapWithMetadata(apperrors.CodeSeedInvalid, err.Error(), map[string]string{
			"Seed": seedErr.value,
		}, err)
	default:
		return apperrors.Wrap(apperrors.CodeUnknown, err.Error(), err)
	}
}

// statusError renders err as a gRPC status localized for locale.
func statusError(err error, locale string) error {
	domainErr := domainError(err)
	catalog := i18n.GetCatalog(locale)
	return domainErr.ToGRPCStatus(catalog.Locale(), catalog.Format(string(domainErr.Code), domainErr.Metadata))
}

// Localize renders err the way a failed Roll reports it to a caller in locale.
func Localize(err error, locale string) string {
	if err == nil {
		return ""
	}
	domainErr := domainError(err)
	return i18n.GetCatalog(locale).Format(string(domainErr.Code), domainErr.Metadata)
}

package dice

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

const (
	fieldNotation = "notation"
	fieldSeed     = "seed"
	fieldLocale   = "locale"
	fieldOutput   = "output"
	fieldBatches  = "batches"
)

// maxExactFloat is the largest integer a JSON number carries without loss.
const maxExactFloat = 1 << 53

var errNotationMissing = errors.New("notation is required")

// invalidSeedError reports a seed field that is not an int64.
type invalidSeedError struct {
	value string
}

func (e *invalidSeedError) Error() string {
	return "seed must be an integer: " + e.value
}

// RollRequest asks the service to evaluate one notation.
type RollRequest struct {
	Notation string
	// Seed replays a previous roll when set.
	Seed *int64
	// Locale selects the language of error messages.
	Locale string
}

// RollResponse is the evaluated output and the seed that produced it.
type RollResponse struct {
	Output  string
	Batches uint64
	Seed    int64
}

// Struct encodes the request. The seed is sent as a decimal string so every
// int64 survives the trip.
func (r RollRequest) Struct() *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldNotation: structpb.NewStringValue(r.Notation),
	}
	if r.Seed != nil {
		fields[fieldSeed] = structpb.NewStringValue(strconv.FormatInt(*r.Seed, 10))
	}
	if locale := strings.TrimSpace(r.Locale); locale != "" {
		fields[fieldLocale] = structpb.NewStringValue(locale)
	}
	return &structpb.Struct{Fields: fields}
}

// Struct encodes the response.
func (r RollResponse) Struct() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldOutput:  structpb.NewStringValue(r.Output),
		fieldBatches: structpb.NewNumberValue(float64(r.Batches)),
		fieldSeed:    structpb.NewStringValue(strconv.FormatInt(r.Seed, 10)),
	}}
}

// ParseRollRequest decodes a request. seed may be a decimal string or an
// integral number within the exact float range.
func ParseRollRequest(in *structpb.Struct) (RollRequest, error) {
	fields := in.GetFields()
	notation, ok := fields[fieldNotation]
	if !ok {
		return RollRequest{}, errNotationMissing
	}
	text, ok := notation.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return RollRequest{}, errNotationMissing
	}

	req := RollRequest{
		Notation: text.StringValue,
		Locale:   strings.TrimSpace(fields[fieldLocale].GetStringValue()),
	}
	if raw, ok := fields[fieldSeed]; ok {
		seed, err := parseSeed(raw)
		if err != nil {
			return RollRequest{}, err
		}
		req.Seed = &seed
	}
	return req, nil
}

// ParseRollResponse decodes a response.
func ParseRollResponse(in *structpb.Struct) (RollResponse, error) {
	fields := in.GetFields()
	batches := fields[fieldBatches].GetNumberValue()
	if batches < 0 || batches != math.Trunc(batches) {
		return RollResponse{}, fmt.Errorf("invalid batches %v", batches)
	}
	resp := RollResponse{
		Output:  fields[fieldOutput].GetStringValue(),
		Batches: uint64(batches),
	}
	if raw, ok := fields[fieldSeed]; ok {
		seed, err := parseSeed(raw)
		if err != nil {
			return RollResponse{}, err
		}
		resp.Seed = seed
	}
	return resp, nil
}

func parseSeed(value *structpb.Value) (int64, error) {
	switch kind := value.GetKind().(type) {
	case *structpb.Value_StringValue:
		seed, err := strconv.ParseInt(strings.TrimSpace(kind.StringValue), 10, 64)
		if err != nil {
			return 0, &invalidSeedError{value: strconv.Quote(kind.StringValue)}
		}
		return seed, nil
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > maxExactFloat {
			return 0, &invalidSeedError{value: strconv.FormatFloat(n, 'g', -1, 64)}
		}
		return int64(n), nil
	default:
		return 0, &invalidSeedError{value: "non-numeric value"}
	}
}

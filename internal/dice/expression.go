package dice

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// MaxRollDice caps the dice sampled by a single dice group so a typo cannot
// exhaust memory. Transports usually enforce a much lower command limit.
const MaxRollDice = 1_000_000

// Source draws uniform integers in [0, n) for n > 0.
//
// *math/rand/v2.Rand satisfies Source. A Source is used by one evaluation at a
// time; concurrent commands each get their own.
type Source interface {
	Uint64N(n uint64) uint64
}

// Expression is one term of a command: a Constant or a Roll.
type Expression interface {
	fmt.Stringer
	evaluate(src Source) (Result, error)
}

// Constant is a literal term. It is never filtered or shown as a roll.
type Constant uint64

func (c Constant) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

func (c Constant) evaluate(Source) (Result, error) {
	return Result{Rolls: []uint64{uint64(c)}}, nil
}

// FilterKind selects how sorted results are reduced before summing.
type FilterKind int

const (
	FilterNone FilterKind = iota
	FilterDrop
	FilterKeep
)

// Filter drops the N lowest or keeps the N highest results.
// The zero value applies no filter.
type Filter struct {
	Kind FilterKind
	N    uint64
}

// Drop returns a filter discarding the n lowest results.
func Drop(n uint64) Filter {
	return Filter{Kind: FilterDrop, N: n}
}

// Keep returns a filter retaining the n highest results.
func Keep(n uint64) Filter {
	return Filter{Kind: FilterKeep, N: n}
}

func (f Filter) String() string {
	switch f.Kind {
	case FilterDrop:
		return "d" + strconv.FormatUint(f.N, 10)
	case FilterKeep:
		return "k" + strconv.FormatUint(f.N, 10)
	default:
		return ""
	}
}

// Roll is a dice group: DiceCount dice with Faces faces each.
type Roll struct {
	DiceCount uint64
	Faces     uint64
	Filter    Filter
}

func (r Roll) String() string {
	s := strconv.FormatUint(r.DiceCount, 10) + "d" + strconv.FormatUint(r.Faces, 10)
	if r.Filter.Kind != FilterNone {
		s += " " + r.Filter.String()
	}
	return s
}

func (r Roll) evaluate(src Source) (Result, error) {
	if r.Faces == 0 {
		return Result{}, &Error{Kind: KindInvalidDie, Detail: "d0"}
	}
	if r.DiceCount > MaxRollDice {
		return Result{}, &Error{
			Kind:   KindTooManyDice,
			Detail: fmt.Sprintf("%d exceeds %d", r.DiceCount, MaxRollDice),
		}
	}
	rolls := make([]uint64, r.DiceCount)
	for i := range rolls {
		rolls[i] = src.Uint64N(r.Faces) + 1
	}
	return Result{Rolls: rolls, Filter: r.Filter}, nil
}

// Evaluate samples expr with fresh draws from src.
func Evaluate(expr Expression, src Source) (Result, error) {
	if expr == nil {
		return Result{}, errors.New("expression is required")
	}
	if src == nil {
		return Result{}, errors.New("random source is required")
	}
	return expr.evaluate(src)
}

// Result holds the values sampled for one expression in roll order.
type Result struct {
	Rolls  []uint64
	Filter Filter
}

// Contribution sums the results selected by the filter.
//
// Filtering works on a sorted copy, so Rolls keeps its sampled order.
func (r Result) Contribution() (uint64, error) {
	sorted := slices.Clone(r.Rolls)
	slices.Sort(sorted)

	selected := sorted
	switch r.Filter.Kind {
	case FilterDrop:
		if r.Filter.N > uint64(len(sorted)) {
			return 0, filterOutOfRange("drop", r.Filter.N, len(sorted))
		}
		selected = sorted[r.Filter.N:]
	case FilterKeep:
		if r.Filter.N > uint64(len(sorted)) {
			return 0, filterOutOfRange("keep", r.Filter.N, len(sorted))
		}
		selected = sorted[uint64(len(sorted))-r.Filter.N:]
	}

	var sum uint64
	for _, v := range selected {
		if sum > math.MaxUint64-v {
			return 0, ErrTotalOverflow
		}
		sum += v
	}
	return sum, nil
}

// String renders the rolls as "[v1, v2, ...]" in sampled order.
func (r Result) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range r.Rolls {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatUint(v, 10))
	}
	b.WriteByte(']')
	return b.String()
}

func filterOutOfRange(verb string, n uint64, count int) error {
	return &Error{
		Kind:   KindFilterOutOfRange,
		Detail: fmt.Sprintf("cannot %s %d of %d dice", verb, n, count),
	}
}

// ParseRollExpression parses a dice group, falling back to a constant.
//
//	roll_expr := dice_roll | constant
//	dice_roll := [uint] "d" uint [ws filter]
//	filter    := ("d" | "k") uint
//
// Literals are case-insensitive.
func ParseRollExpression(input string) (string, Expression, error) {
	rest, roll, err := parseDiceRoll(input)
	if err == nil {
		return rest, roll, nil
	}
	if err != errNoMatch {
		return input, nil, err
	}
	rest, value, err := ParseUnsignedInteger(input)
	if err != nil {
		return input, nil, err
	}
	return rest, Constant(value), nil
}

// parseDiceRoll returns errNoMatch when input has no "d" after the optional
// count. Once the "d" is seen the faces are mandatory.
func parseDiceRoll(input string) (string, Roll, error) {
	rest := input
	count := uint64(1)
	if rest != "" && isDigit(rest[0]) {
		var err error
		rest, count, err = ParseUnsignedInteger(rest)
		if err != nil {
			return input, Roll{}, err
		}
	}
	if !hasPrefixFold(rest, 'd') {
		return input, Roll{}, errNoMatch
	}
	rest, faces, err := ParseUnsignedInteger(rest[1:])
	if err != nil {
		return input, Roll{}, err
	}

	roll := Roll{DiceCount: count, Faces: faces}
	rest, filter, err := parseFilter(rest)
	switch {
	case err == errNoMatch:
	case err != nil:
		return input, Roll{}, err
	default:
		roll.Filter = filter
	}
	return rest, roll, nil
}

// parseFilter requires at least one whitespace character before the tag.
// A tag commits the parse, so the count after it is mandatory.
func parseFilter(input string) (string, Filter, error) {
	ws := spaceRun(input)
	if ws == 0 {
		return input, Filter{}, errNoMatch
	}
	rest := input[ws:]
	var kind FilterKind
	switch {
	case hasPrefixFold(rest, 'd'):
		kind = FilterDrop
	case hasPrefixFold(rest, 'k'):
		kind = FilterKeep
	default:
		return input, Filter{}, errNoMatch
	}
	rest, n, err := ParseUnsignedInteger(rest[1:])
	if err != nil {
		return input, Filter{}, err
	}
	return rest, Filter{Kind: kind, N: n}, nil
}

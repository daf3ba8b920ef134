package dice

import (
	"errors"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Operator joins a term to the running total.
type Operator int

const (
	Add Operator = iota
	Subtract
)

func (o Operator) String() string {
	if o == Subtract {
		return "-"
	}
	return "+"
}

// Term is one operator and expression pair of a command.
type Term struct {
	Operator   Operator
	Expression Expression
}

// Command is a parsed roll command. It is immutable after construction.
type Command struct {
	batches uint64
	terms   []Term
}

// NewCommand builds a command from terms. The first term is always added.
func NewCommand(batches uint64, terms []Term) (Command, error) {
	if len(terms) == 0 {
		return Command{}, errors.New("at least one term is required")
	}
	for _, term := range terms {
		if term.Expression == nil {
			return Command{}, errors.New("term expression is required")
		}
	}
	owned := make([]Term, len(terms))
	copy(owned, terms)
	owned[0].Operator = Add
	return Command{batches: batches, terms: owned}, nil
}

// BatchCount returns how many independent passes Evaluate makes.
func (c Command) BatchCount() uint64 {
	return c.batches
}

// Terms returns a copy of the command terms in source order.
func (c Command) Terms() []Term {
	out := make([]Term, len(c.terms))
	copy(out, c.terms)
	return out
}

// DiceCount returns the number of dice Evaluate samples across all batches,
// saturating at math.MaxUint64.
func (c Command) DiceCount() uint64 {
	var perBatch uint64
	for _, term := range c.terms {
		roll, ok := term.Expression.(Roll)
		if !ok {
			continue
		}
		if perBatch > math.MaxUint64-roll.DiceCount {
			return math.MaxUint64
		}
		perBatch += roll.DiceCount
	}
	if perBatch != 0 && c.batches > math.MaxUint64/perBatch {
		return math.MaxUint64
	}
	return perBatch * c.batches
}

// String renders the command in canonical notation.
func (c Command) String() string {
	var b strings.Builder
	if c.batches != 1 {
		b.WriteString(strconv.FormatUint(c.batches, 10))
		b.WriteByte(' ')
	}
	for i, term := range c.terms {
		if i > 0 {
			b.WriteString(" " + term.Operator.String() + " ")
		}
		b.WriteString(term.Expression.String())
	}
	return b.String()
}

// Evaluate rolls every batch and joins the batch lines with "\n".
//
// Each line is the concatenated roll lists of the dice terms wrapped in
// backticks, followed by " Result: `total`".
func (c Command) Evaluate(src Source) (string, error) {
	if src == nil {
		return "", errors.New("random source is required")
	}
	var b strings.Builder
	for i := uint64(0); i < c.batches; i++ {
		if i > 0 {
			b.WriteByte('\n')
		}
		if err := c.evaluateBatch(&b, src); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

// evaluateBatch sums the batch exactly. Only a final total outside the int64
// range is an overflow, so "18446744073709551615-18446744073709551615" is 0.
func (c Command) evaluateBatch(b *strings.Builder, src Source) error {
	total := new(big.Int)
	term := new(big.Int)
	b.WriteByte('`')
	for _, t := range c.terms {
		result, err := t.Expression.evaluate(src)
		if err != nil {
			return err
		}
		contribution, err := result.Contribution()
		if err != nil {
			return err
		}
		term.SetUint64(contribution)
		if t.Operator == Subtract {
			total.Sub(total, term)
		} else {
			total.Add(total, term)
		}
		if _, ok := t.Expression.(Roll); ok {
			b.WriteString(result.String())
		}
	}
	if !total.IsInt64() {
		return ErrTotalOverflow
	}
	b.WriteString("` Result: `")
	b.WriteString(strconv.FormatInt(total.Int64(), 10))
	b.WriteByte('`')
	return nil
}

// ParseCommand parses a command and returns the unconsumed remainder.
//
//	command  := ws [uint ws1] expr_seq
//	expr_seq := trimmed(roll_expr) (trimmed(operator) trimmed(roll_expr))*
//	operator := "+" | "-"
//
// A leading integer followed by whitespace is always the batch count, so
// "2 + 3" fails on "+ 3" rather than reading 2 as the first term.
func ParseCommand(input string) (Command, string, error) {
	rest := skipSpace(input)
	if rest == "" {
		return Command{}, input, incomplete(rest)
	}

	batches := uint64(1)
	rest, prefix, ok, err := parseBatchPrefix(rest)
	if err != nil {
		return Command{}, input, err
	}
	if ok {
		batches = prefix
	}

	rest, terms, err := parseExpressionSequence(rest)
	if err != nil {
		return Command{}, input, err
	}
	cmd, err := NewCommand(batches, terms)
	if err != nil {
		return Command{}, input, err
	}
	return cmd, rest, nil
}

// Parse parses a complete command, rejecting unconsumed input.
func Parse(input string) (Command, error) {
	cmd, rest, err := ParseCommand(input)
	if err != nil {
		return Command{}, err
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		return Command{}, &Error{Kind: KindTrailingInput, Input: rest}
	}
	return cmd, nil
}

func parseBatchPrefix(input string) (string, uint64, bool, error) {
	if input == "" || !isDigit(input[0]) {
		return input, 0, false, nil
	}
	rest, n, err := ParseUnsignedInteger(input)
	if err != nil {
		return input, 0, false, err
	}
	ws := spaceRun(rest)
	if ws == 0 {
		return input, 0, false, nil
	}
	return rest[ws:], n, true, nil
}

func parseExpressionSequence(input string) (string, []Term, error) {
	expression := Trimmed[Expression](ParseRollExpression)
	operator := Trimmed[Operator](parseOperator)

	rest, first, err := expression(input)
	if err != nil {
		return input, nil, err
	}
	terms := []Term{{Operator: Add, Expression: first}}
	for {
		afterOp, op, err := operator(rest)
		if err != nil {
			break
		}
		next, expr, err := expression(afterOp)
		if err != nil {
			return input, nil, err
		}
		terms = append(terms, Term{Operator: op, Expression: expr})
		rest = next
	}
	return rest, terms, nil
}

func parseOperator(input string) (string, Operator, error) {
	if input == "" {
		return input, Add, errNoMatch
	}
	switch input[0] {
	case '+':
		return input[1:], Add, nil
	case '-':
		return input[1:], Subtract, nil
	default:
		return input, Add, errNoMatch
	}
}

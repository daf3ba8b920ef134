package dice

import "fmt"

// Limits bounds the work one command may request. A zero field is unlimited.
type Limits struct {
	MaxDice    uint64
	MaxBatches uint64
}

// Check rejects commands that exceed the limits before any die is sampled.
func (l Limits) Check(c Command) error {
	if l.MaxBatches > 0 && c.BatchCount() > l.MaxBatches {
		return &Error{
			Kind:   KindTooManyDice,
			Detail: fmt.Sprintf("%d batches requested, limit is %d", c.BatchCount(), l.MaxBatches),
		}
	}
	if l.MaxDice > 0 && c.DiceCount() > l.MaxDice {
		return &Error{
			Kind:   KindTooManyDice,
			Detail: fmt.Sprintf("%d requested, limit is %d", c.DiceCount(), l.MaxDice),
		}
	}
	return nil
}

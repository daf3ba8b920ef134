// Package dice parses and evaluates dice notation commands such as
// "2 3d8 + 2d6 k2 - 4".
//
// A command is an optional batch count followed by a flat sum or difference
// of terms. A term is either a constant or a dice group with an optional
// drop/keep filter. Evaluation draws from a caller-provided Source so every
// invocation owns its randomness and no state is shared between commands.
//
// Output is one line per batch:
//
//	`[4, 2, 6][3, 1]` Result: `12`
//
// Constants count toward the total but are not shown in the roll list.
package dice

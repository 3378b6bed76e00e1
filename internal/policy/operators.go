package policy

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Operator is a comparison between a transaction value (left) and a
// configured control value (right).
type Operator string

const (
	OpIn  Operator = "IN"
	OpEq  Operator = "EQ"
	OpLt  Operator = "LT"
	OpLte Operator = "LTE"
	OpGt  Operator = "GT"
	OpGte Operator = "GTE"
)

var operators = []Operator{OpIn, OpEq, OpLt, OpLte, OpGt, OpGte}

// ParseOperator resolves an operator name. Names are case-insensitive.
func ParseOperator(name string) (Operator, error) {
	op := Operator(strings.ToUpper(strings.TrimSpace(name)))
	if !slices.Contains(operators, op) {
		return "", fmt.Errorf("%w: %q", ErrUnknownOperator, name)
	}
	return op, nil
}

// Apply evaluates left <op> right. For IN the right operands form the
// collection searched for left; every other operator takes exactly one
// right operand and reports false otherwise.
func Apply[T cmp.Ordered](op Operator, left T, right ...T) bool {
	if op == OpIn {
		return slices.Contains(right, left)
	}
	if len(right) != 1 {
		return false
	}

	c := cmp.Compare(left, right[0])
	switch op {
	case OpEq:
		return c == 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	}
	return false
}

func (o Operator) String() string {
	return string(o)
}

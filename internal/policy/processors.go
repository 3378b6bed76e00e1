package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// TransactionData is the flat field view of a transaction that controls
// compare against, keyed by the definition's variable_name.
type TransactionData map[string]string

// Processor validates and evaluates values for one control definition.
type Processor interface {
	// Validate reports whether value may be stored for the control.
	Validate(value string) bool
	// Evaluate reports whether the transaction satisfies the configured value.
	Evaluate(value string, txn TransactionData) bool
}

func newProcessor(def Definition) (Processor, error) {
	if def.SrcComparison.VariableName == "" {
		return nil, fmt.Errorf("%w: missing src_comparison.variable_name", ErrInvalidDefinition)
	}
	op, err := ParseOperator(def.SrcComparison.Operator)
	if err != nil {
		return nil, err
	}

	switch def.Type {
	case TypeString:
		return newStringProcessor(def, op), nil
	case TypeInteger:
		if err := checkBounds(def.InputValidation); err != nil {
			return nil, err
		}
		return &integerProcessor{def: def, op: op}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, def.Type)
	}
}

func checkBounds(v *InputValidation) error {
	if v == nil || v.MinValue == nil || v.MaxValue == nil {
		return nil
	}
	if *v.MinValue > *v.MaxValue {
		return fmt.Errorf("%w: min_value %d exceeds max_value %d", ErrInvalidDefinition, *v.MinValue, *v.MaxValue)
	}
	return nil
}

// splitValues turns a configured value into the operand list. IN accepts a
// comma separated collection; every other operator takes the whole value.
func splitValues(op Operator, value string) []string {
	if op != OpIn {
		return []string{strings.TrimSpace(value)}
	}
	parts := strings.Split(value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type stringProcessor struct {
	def     Definition
	op      Operator
	choices map[string]struct{}
}

func newStringProcessor(def Definition, op Operator) *stringProcessor {
	p := &stringProcessor{def: def, op: op}
	if def.InputValidation != nil && len(def.InputValidation.Choices) > 0 {
		p.choices = make(map[string]struct{}, len(def.InputValidation.Choices))
		for _, c := range def.InputValidation.Choices {
			p.choices[strings.ToUpper(c)] = struct{}{}
		}
	}
	return p
}

func (p *stringProcessor) Validate(value string) bool {
	values := splitValues(p.op, value)
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if v == "" {
			return false
		}
		if p.choices == nil {
			continue
		}
		if _, ok := p.choices[strings.ToUpper(v)]; !ok {
			return false
		}
	}
	return true
}

func (p *stringProcessor) Evaluate(value string, txn TransactionData) bool {
	incoming, ok := txn[p.def.SrcComparison.VariableName]
	if !ok {
		return false
	}

	right := splitValues(p.op, strings.ToUpper(value))
	return Apply(p.op, strings.ToUpper(incoming), right...)
}

type integerProcessor struct {
	def Definition
	op  Operator
}

func (p *integerProcessor) Validate(value string) bool {
	values := splitValues(p.op, value)
	if len(values) == 0 {
		return false
	}
	for _, raw := range values {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false
		}
		if v := p.def.InputValidation; v != nil {
			if v.MinValue != nil && n < *v.MinValue {
				return false
			}
			if v.MaxValue != nil && n > *v.MaxValue {
				return false
			}
		}
	}
	return true
}

// Evaluate fails closed: an unparseable transaction field or control value
// never satisfies the control.
func (p *integerProcessor) Evaluate(value string, txn TransactionData) bool {
	incoming, ok := txn[p.def.SrcComparison.VariableName]
	if !ok {
		return false
	}
	left, err := strconv.ParseInt(strings.TrimSpace(incoming), 10, 64)
	if err != nil {
		return false
	}

	raw := splitValues(p.op, value)
	right := make([]int64, 0, len(raw))
	for _, r := range raw {
		n, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			return false
		}
		right = append(right, n)
	}
	return Apply(p.op, left, right...)
}

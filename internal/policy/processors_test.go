package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func mustProcessor(t *testing.T, def Definition) Processor {
	t.Helper()
	p, err := newProcessor(def)
	require.NoError(t, err)
	return p
}

func TestStringProcessor_Evaluate(t *testing.T) {
	country := mustProcessor(t, Definition{
		Type:          TypeString,
		SrcComparison: SourceComparison{VariableName: "country", Operator: "EQ"},
	})
	categories := mustProcessor(t, Definition{
		Type:          TypeString,
		SrcComparison: SourceComparison{VariableName: "merchant_category", Operator: "IN"},
	})

	t.Run("case insensitive equality", func(t *testing.T) {
		assert.True(t, country.Evaluate("US", TransactionData{"country": "us"}))
		assert.True(t, country.Evaluate("us", TransactionData{"country": "US"}))
	})

	t.Run("mismatch", func(t *testing.T) {
		assert.False(t, country.Evaluate("AU", TransactionData{"country": "US"}))
	})

	t.Run("missing field fails closed", func(t *testing.T) {
		assert.False(t, country.Evaluate("US", TransactionData{}))
	})

	t.Run("in over comma separated value", func(t *testing.T) {
		txn := TransactionData{"merchant_category": "5412"}
		assert.True(t, categories.Evaluate("5411, 5412", txn))
		assert.False(t, categories.Evaluate("5411,5413", txn))
	})

	t.Run("in is not substring match", func(t *testing.T) {
		assert.False(t, categories.Evaluate("54111", TransactionData{"merchant_category": "5411"}))
	})
}

func TestStringProcessor_Validate(t *testing.T) {
	free := mustProcessor(t, Definition{
		Type:          TypeString,
		SrcComparison: SourceComparison{VariableName: "merchant", Operator: "EQ"},
	})
	restricted := mustProcessor(t, Definition{
		Type:            TypeString,
		SrcComparison:   SourceComparison{VariableName: "merchant_category", Operator: "IN"},
		InputValidation: &InputValidation{Choices: []string{"5411", "grocery"}},
	})

	assert.True(t, free.Validate("anything"))
	assert.False(t, free.Validate("   "))
	assert.True(t, restricted.Validate("GROCERY"))
	assert.True(t, restricted.Validate("5411,grocery"))
	assert.False(t, restricted.Validate("5411,9999"))
	assert.False(t, restricted.Validate("9999"))
}

func TestIntegerProcessor_Evaluate(t *testing.T) {
	maxAmount := mustProcessor(t, Definition{
		Type:          TypeInteger,
		SrcComparison: SourceComparison{VariableName: "amount", Operator: "LTE"},
	})

	tests := []struct {
		name   string
		value  string
		amount string
		want   bool
	}{
		{"below limit", "10", "5", true},
		{"at limit", "10", "10", true},
		{"above limit", "10", "11", false},
		{"non numeric transaction value", "10", "abc", false},
		{"non numeric control value", "abc", "5", false},
		{"fractional amount", "10", "5.5", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maxAmount.Evaluate(tt.value, TransactionData{"amount": tt.amount}))
		})
	}

	t.Run("missing field fails closed", func(t *testing.T) {
		assert.False(t, maxAmount.Evaluate("10", TransactionData{}))
	})
}

func TestIntegerProcessor_Validate(t *testing.T) {
	bounded := mustProcessor(t, Definition{
		Type:            TypeInteger,
		SrcComparison:   SourceComparison{VariableName: "amount", Operator: "LTE"},
		InputValidation: &InputValidation{MinValue: int64p(1), MaxValue: int64p(1000)},
	})
	unbounded := mustProcessor(t, Definition{
		Type:          TypeInteger,
		SrcComparison: SourceComparison{VariableName: "amount", Operator: "GTE"},
	})

	assert.True(t, bounded.Validate("1"))
	assert.True(t, bounded.Validate("1000"))
	assert.False(t, bounded.Validate("0"))
	assert.False(t, bounded.Validate("1001"))
	assert.False(t, bounded.Validate("ten"))
	assert.True(t, unbounded.Validate("-50"))
	assert.False(t, unbounded.Validate("1.5"))
}

func TestNewProcessor_Errors(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr error
	}{
		{
			name:    "unknown operator",
			def:     Definition{Type: TypeString, SrcComparison: SourceComparison{VariableName: "x", Operator: "LIKE"}},
			wantErr: ErrUnknownOperator,
		},
		{
			name:    "unknown type",
			def:     Definition{Type: "Float", SrcComparison: SourceComparison{VariableName: "x", Operator: "EQ"}},
			wantErr: ErrUnknownType,
		},
		{
			name:    "missing variable",
			def:     Definition{Type: TypeString, SrcComparison: SourceComparison{Operator: "EQ"}},
			wantErr: ErrInvalidDefinition,
		},
		{
			name: "inverted bounds",
			def: Definition{
				Type:            TypeInteger,
				SrcComparison:   SourceComparison{VariableName: "amount", Operator: "LTE"},
				InputValidation: &InputValidation{MinValue: int64p(10), MaxValue: int64p(1)},
			},
			wantErr: ErrInvalidDefinition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newProcessor(tt.def)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

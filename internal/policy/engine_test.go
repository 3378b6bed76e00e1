package policy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T, mandatory MandatorySpec) *Registry {
	t.Helper()
	r, err := NewRegistry(Config{
		Controls: map[string]Definition{
			"A": {Type: TypeString, SrcComparison: SourceComparison{VariableName: "merchant", Operator: "EQ"}},
			"B": {Type: TypeString, SrcComparison: SourceComparison{VariableName: "merchant_category", Operator: "IN"}},
			"C": {Type: TypeInteger, SrcComparison: SourceComparison{VariableName: "amount", Operator: "LTE"}},
			"MERCH_CAT": {
				Type:            TypeString,
				SrcComparison:   SourceComparison{VariableName: "merchant_category", Operator: "IN"},
				InputValidation: &InputValidation{CanMultipleExists: true},
			},
		},
		Mandatory: mandatory,
	})
	require.NoError(t, err)
	return r
}

func TestMandatorySpec_FirstMissing(t *testing.T) {
	spec := MandatorySpec{Require("A"), RequireAny("B", "C")}

	t.Run("group unsatisfied", func(t *testing.T) {
		entry, missing := spec.FirstMissing(GroupedControls{"A": {"x"}}.Has)
		require.True(t, missing)
		assert.True(t, entry.Group)
		assert.Equal(t, []string{"B", "C"}, entry.Names)
		assert.Equal(t, "[B, C]", entry.String())
	})

	t.Run("one group member is enough", func(t *testing.T) {
		_, missing := spec.FirstMissing(GroupedControls{"A": {"x"}, "B": {"y"}}.Has)
		assert.False(t, missing)
	})

	t.Run("reports first entry in order", func(t *testing.T) {
		entry, missing := spec.FirstMissing(GroupedControls{}.Has)
		require.True(t, missing)
		assert.Equal(t, "A", entry.String())
	})

	t.Run("empty spec", func(t *testing.T) {
		_, missing := MandatorySpec(nil).FirstMissing(GroupedControls{}.Has)
		assert.False(t, missing)
	})
}

func TestEngine_Evaluate(t *testing.T) {
	engine := NewEngine(testRegistry(t, MandatorySpec{Require("C")}))
	txn := TransactionData{
		"merchant":          "Coles",
		"merchant_category": "5412",
		"amount":            "150",
	}

	t.Run("all controls pass", func(t *testing.T) {
		d, err := engine.Evaluate(txn, GroupedControls{"C": {"200"}, "A": {"coles"}})
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Nil(t, d.Rejection)
	})

	t.Run("mandatory control missing", func(t *testing.T) {
		d, err := engine.Evaluate(txn, GroupedControls{"A": {"coles"}})
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		require.NotNil(t, d.Rejection)
		assert.Equal(t, "Mandatory Control C not configured", d.Rejection.Message)
		assert.Equal(t, "C", d.Rejection.FailedControl)
	})

	t.Run("any configured value passes", func(t *testing.T) {
		d, err := engine.Evaluate(txn, GroupedControls{"C": {"200"}, "MERCH_CAT": {"5411", "5412"}})
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("no configured value passes", func(t *testing.T) {
		d, err := engine.Evaluate(txn, GroupedControls{"C": {"200"}, "MERCH_CAT": {"5411", "5413"}})
		require.NoError(t, err)
		require.False(t, d.Allowed)
		assert.Equal(t, "Failed to comply with control MERCH_CAT", d.Rejection.Message)
		assert.Equal(t, "MERCH_CAT", d.Rejection.FailedControl)
	})

	t.Run("first failure by name is reported", func(t *testing.T) {
		d, err := engine.Evaluate(txn, GroupedControls{"C": {"100"}, "A": {"woolworths"}, "B": {"9999"}})
		require.NoError(t, err)
		require.False(t, d.Allowed)
		assert.Equal(t, "A", d.Rejection.FailedControl)
	})

	t.Run("unknown stored control is a configuration error", func(t *testing.T) {
		_, err := engine.Evaluate(txn, GroupedControls{"C": {"200"}, "GEO": {"AU"}})
		assert.ErrorIs(t, err, ErrUnknownControl)
	})

	t.Run("fractional amount fails integer control", func(t *testing.T) {
		frac := TransactionData{"amount": "150.5"}
		d, err := engine.Evaluate(frac, GroupedControls{"C": {"200"}})
		require.NoError(t, err)
		assert.False(t, d.Allowed)
	})
}

func TestEngine_Evaluate_MandatoryGroup(t *testing.T) {
	engine := NewEngine(testRegistry(t, MandatorySpec{Require("C"), RequireAny("A", "B")}))

	d, err := engine.Evaluate(TransactionData{"amount": "1"}, GroupedControls{"C": {"10"}})
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, "Mandatory Control [A, B] not configured", d.Rejection.Message)
	assert.Equal(t, []string{"A", "B"}, d.Rejection.Alternatives)
}

func TestRejection_JSONOmitsEmptyControl(t *testing.T) {
	raw, err := json.Marshal(Rejection{Message: "Insufficient balance"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"Insufficient balance"}`, string(raw))

	raw, err = json.Marshal(Rejection{Message: "Failed to comply with control C", FailedControl: "C"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"Failed to comply with control C","failedControl":"C"}`, string(raw))
}

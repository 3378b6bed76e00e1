package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type controlPayload struct {
	Name  string `json:"control_name" validate:"required,max=10"`
	Value string `json:"control_value" validate:"required,max=40"`
	Kind  string `json:"kind,omitempty" validate:"omitempty,oneof=a b"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name       string
		input      controlPayload
		wantFields map[string]string
	}{
		{
			name:  "valid",
			input: controlPayload{Name: "MAX_AMT", Value: "1000"},
		},
		{
			name:  "missing both",
			input: controlPayload{},
			wantFields: map[string]string{
				"control_name":  "control_name is required",
				"control_value": "control_value is required",
			},
		},
		{
			name:  "too long",
			input: controlPayload{Name: "MERCHANT_CATEGORY", Value: strings.Repeat("x", 41)},
			wantFields: map[string]string{
				"control_name":  "control_name must be at most 10",
				"control_value": "control_value must be at most 40",
			},
		},
		{
			name:       "oneof",
			input:      controlPayload{Name: "MAX_AMT", Value: "1", Kind: "c"},
			wantFields: map[string]string{"kind": "kind must be one of: a b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, "Validation failed", err.Error())
			assert.Equal(t, tt.wantFields, GetValidationFields(err))
		})
	}
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(&ValidationError{Message: "x"}))
	assert.False(t, IsValidationError(errors.New("plain")))
	assert.False(t, IsValidationError(nil))
	assert.Nil(t, GetValidationFields(errors.New("plain")))
}

func TestValidateCardID(t *testing.T) {
	assert.NoError(t, ValidateCardID("3f6e1b2a-8c1d-4a55-9d1f-0b2a7c9e4d11"))
	assert.Error(t, ValidateCardID(""))
	assert.Error(t, ValidateCardID(strings.Repeat("a", MaxCardIDLength+1)))
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "", want: 20},
		{raw: "5", want: 5},
		{raw: "0", want: 0},
		{raw: "101", wantErr: true},
		{raw: "-1", wantErr: true},
		{raw: "ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseIntParam(tt.raw, "limit", 20, 0, 100)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

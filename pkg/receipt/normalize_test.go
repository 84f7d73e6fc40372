package receipt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDecimal(t *testing.T) {
	tests := []struct {
		input    string
		expected *string
	}{
		{"12,50", strPtr("12.50")},
		{"  0,89 ", strPtr("0.89")},
		{"3.10", strPtr("3.10")},
		{"-", nil},
		{" - ", nil},
		{"", nil},
		{"   ", nil},
		{"'1,00'", strPtr("1.00")},
		{"-0,20", strPtr("-0.20")},
	}

	for _, tt := range tests {
		got := NormalizeDecimal(tt.input)
		if tt.expected == nil {
			assert.Nil(t, got, "input %q", tt.input)
			continue
		}
		if assert.NotNil(t, got, "input %q", tt.input) {
			assert.Equal(t, *tt.expected, *got, "input %q", tt.input)
		}
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "PAN DE MOLDE", *Normalize("  PAN DE MOLDE    "))
	assert.Equal(t, "DONT STOP", *Normalize("DON'T STOP"))
	assert.Equal(t, "ZUMO 1L", *Normalize(`"ZUMO" 1L`))
	assert.Equal(t, "AGUA 1,5L", *Normalize("AGUA 1,5L"), "text fields keep their commas")
	assert.Nil(t, Normalize("-"))
	assert.Nil(t, Normalize(""))
	assert.Nil(t, Normalize("''"))
}

func strPtr(s string) *string { return &s }

package receipt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ticketsync/ticketsync/pkg/models"
)

func TestCheckFieldForInjection(t *testing.T) {
	tests := []struct {
		name            string
		value           *string
		expectInjection bool
	}{
		{name: "nil value", value: nil},
		{name: "product description", value: strPtr("LECHE ENTERA 1L")},
		{name: "amount", value: strPtr("12.50")},
		{name: "classic injection", value: strPtr("1' OR '1'='1"), expectInjection: true},
		{name: "union select", value: strPtr("1' UNION SELECT password FROM users--"), expectInjection: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckFieldForInjection("product", tt.value)
			if !tt.expectInjection {
				assert.Nil(t, result)
				return
			}
			if assert.NotNil(t, result) {
				assert.Equal(t, "product", result.Field)
				assert.NotEmpty(t, result.Fingerprint)
			}
		})
	}
}

func TestCheckLine(t *testing.T) {
	line := &models.ProductLine{
		TicketID: 1,
		Quantity: strPtr("1"),
		Product:  strPtr("1' OR '1'='1"),
		PVP:      strPtr("0.45"),
	}

	results := CheckLine(line)
	if assert.Len(t, results, 1) {
		assert.Equal(t, "product", results[0].Field)
	}
}

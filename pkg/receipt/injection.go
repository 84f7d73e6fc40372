package receipt

import (
	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ticketsync/ticketsync/pkg/models"
)

// InjectionCheckResult describes a field whose text looks like SQL injection.
// Values are always sent as bound parameters; the check only flags receipts
// worth a second look.
type InjectionCheckResult struct {
	Field       string
	Fingerprint string // libinjection fingerprint of the detected pattern
	Value       string
}

// CheckFieldForInjection uses libinjection to detect SQL injection patterns
// in a field value. Returns nil for nil or clean values.
func CheckFieldForInjection(field string, value *string) *InjectionCheckResult {
	if value == nil {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(*value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Field:       field,
		Fingerprint: string(fingerprint),
		Value:       *value,
	}
}

// CheckLine checks every text field of a product line.
func CheckLine(line *models.ProductLine) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for _, f := range []struct {
		name  string
		value *string
	}{
		{"quantity", line.Quantity},
		{"product", line.Product},
		{"pvp", line.PVP},
		{"total", line.Total},
	} {
		if result := CheckFieldForInjection(f.name, f.value); result != nil {
			results = append(results, result)
		}
	}
	return results
}

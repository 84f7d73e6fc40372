package receipt

import "strings"

var quoteStripper = strings.NewReplacer("'", "", `"`, "")

// Normalize trims a text field and strips quote characters. Empty values and
// a lone dash become nil.
func Normalize(s string) *string {
	s = strings.TrimSpace(quoteStripper.Replace(s))
	if s == "" || s == "-" {
		return nil
	}
	return &s
}

// NormalizeDecimal is Normalize for amounts, with the comma decimal separator
// replaced by a period.
func NormalizeDecimal(s string) *string {
	return Normalize(strings.ReplaceAll(s, ",", "."))
}

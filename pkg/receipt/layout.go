package receipt

import (
	"github.com/ticketsync/ticketsync/pkg/config"
)

// Column is a [Start, End) range of rune offsets within a line.
type Column struct {
	Start int
	End   int
}

// Slice cuts the column out of a line, clamping to the line's length the way
// a short line simply yields a shorter or empty field.
func (c Column) Slice(line []rune) string {
	start, end := c.Start, c.End
	if start > len(line) {
		start = len(line)
	}
	if end > len(line) {
		end = len(line)
	}
	if end < start {
		end = start
	}
	return string(line[start:end])
}

// Layout describes the fixed-width receipt format.
type Layout struct {
	// StartLine is the 0-based index of the first product row.
	StartLine int

	Quantity Column
	Product  Column
	PVP      Column
	Total    Column

	// Terminators are footer barcodes; the first line containing one ends the product rows.
	Terminators []string
}

// DefaultLayout returns the layout of the portal's receipts.
func DefaultLayout() Layout {
	return Layout{
		StartLine:   7,
		Quantity:    Column{0, 5},
		Product:     Column{5, 25},
		PVP:         Column{26, 32},
		Total:       Column{32, 38},
		Terminators: []string{"2902614104014", "2911866831005"},
	}
}

// LayoutFromConfig builds a Layout from validated parser configuration.
func LayoutFromConfig(cfg config.ParserConfig) Layout {
	col := func(r []int) Column { return Column{Start: r[0], End: r[1]} }
	return Layout{
		StartLine:   cfg.StartLine,
		Quantity:    col(cfg.Quantity),
		Product:     col(cfg.Product),
		PVP:         col(cfg.PVP),
		Total:       col(cfg.Total),
		Terminators: append([]string(nil), cfg.Terminators...),
	}
}

// MinWidth is the narrowest line that holds every column in full.
func (l Layout) MinWidth() int {
	width := 0
	for _, c := range []Column{l.Quantity, l.Product, l.PVP, l.Total} {
		if c.End > width {
			width = c.End
		}
	}
	return width
}

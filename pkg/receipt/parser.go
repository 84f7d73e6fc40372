package receipt

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ticketsync/ticketsync/pkg/apperrors"
	"github.com/ticketsync/ticketsync/pkg/models"
)

// MalformedRowError reports a product row narrower than the layout.
// Its fields were still extracted, truncated or empty.
type MalformedRowError struct {
	Line  int // 0-based index in the document
	Width int
	Want  int
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("%v: line %d is %d characters wide, want at least %d",
		apperrors.ErrMalformedRow, e.Line, e.Width, e.Want)
}

func (e *MalformedRowError) Unwrap() error {
	return apperrors.ErrMalformedRow
}

// Table holds the raw extracted fields as parallel slices, one entry per product row.
type Table struct {
	Quantity []string
	Product  []string
	PVP      []string
	Total    []string

	Malformed []*MalformedRowError
}

// Len returns the number of product rows.
func (t *Table) Len() int {
	return len(t.Product)
}

// Lines normalizes every row into a ProductLine for ticketID.
func (t *Table) Lines(ticketID int64) []*models.ProductLine {
	lines := make([]*models.ProductLine, 0, t.Len())
	for i := range t.Product {
		lines = append(lines, &models.ProductLine{
			TicketID: ticketID,
			Quantity: Normalize(t.Quantity[i]),
			Product:  Normalize(t.Product[i]),
			PVP:      NormalizeDecimal(t.PVP[i]),
			Total:    NormalizeDecimal(t.Total[i]),
		})
	}
	return lines
}

// Parser extracts product rows from receipt text. It holds no state besides
// its layout, so Parse is deterministic and safe to reuse.
type Parser struct {
	layout   Layout
	minWidth int
}

// NewParser creates a parser for layout.
func NewParser(layout Layout) *Parser {
	return &Parser{layout: layout, minWidth: layout.MinWidth()}
}

// Parse extracts the product table from the lines of one receipt. Rows start
// at the layout's StartLine and stop before the first terminator line.
// Whitespace-only lines are not rows.
func (p *Parser) Parse(lines []string) Table {
	var table Table

	for i := p.layout.StartLine; i < len(lines); i++ {
		line := lines[i]
		if p.isTerminator(line) {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		runes := []rune(line)
		if width := utf8.RuneCountInString(line); width < p.minWidth {
			table.Malformed = append(table.Malformed, &MalformedRowError{Line: i, Width: width, Want: p.minWidth})
		}

		table.Quantity = append(table.Quantity, p.layout.Quantity.Slice(runes))
		table.Product = append(table.Product, p.layout.Product.Slice(runes))
		table.PVP = append(table.PVP, p.layout.PVP.Slice(runes))
		table.Total = append(table.Total, p.layout.Total.Slice(runes))
	}

	return table
}

func (p *Parser) isTerminator(line string) bool {
	for _, term := range p.layout.Terminators {
		if term != "" && strings.Contains(line, term) {
			return true
		}
	}
	return false
}

package models

import "fmt"

// ProductLine is one parsed row of a receipt. Nil fields are stored as NULL.
// PVP and Total are decimal text with a period separator.
type ProductLine struct {
	TicketID int64   `json:"ticket_id"`
	Quantity *string `json:"quantity,omitempty"`
	Product  *string `json:"product,omitempty"`
	PVP      *string `json:"pvp,omitempty"`
	Total    *string `json:"total,omitempty"`
}

// LineError records a product line that could not be loaded.
// Line is the 1-based position of the row within its ticket, 0 when the
// failure concerns the whole ticket.
type LineError struct {
	TicketID int64
	Line     int
	Err      error
}

func (e *LineError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("ticket %d: %v", e.TicketID, e.Err)
	}
	return fmt.Sprintf("ticket %d line %d: %v", e.TicketID, e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

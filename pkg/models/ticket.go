package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseTicketID parses a portal ticket identifier. A ticket is a retail
// purchase receipt identified by the portal's own ID. Only positive integers are valid.
func ParseTicketID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ticket id %q: %w", s, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid ticket id %q: must be positive", s)
	}
	return id, nil
}

// TicketIDSet is a set of ticket IDs.
type TicketIDSet map[int64]struct{}

// NewTicketIDSet returns a set holding ids.
func NewTicketIDSet(ids ...int64) TicketIDSet {
	s := make(TicketIDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s TicketIDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s TicketIDSet) Add(id int64) {
	s[id] = struct{}{}
}

// Sorted returns the IDs in ascending order.
func (s TicketIDSet) Sorted() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

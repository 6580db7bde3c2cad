package products

import (
	"time"
)

// Line enumerates the product lines the business distributes.
type Line string

const (
	LineGrocery Line = "grocery"
	LineBakery  Line = "bakery"
)

// Valid reports whether the line is a known product line.
func (l Line) Valid() bool {
	return l == LineGrocery || l == LineBakery
}

// Product represents a sellable item. Pricing lives with the sales
// subsystem; the ledger only needs identity, name and line.
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Line      Line      `json:"line"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

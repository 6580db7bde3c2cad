package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StockLevel holds the current quantity for one (warehouse, item) pair.
// When batches exist for the pair it must equal the sum of active batch
// quantities; for pairs without batches it is the sole source of truth.
type StockLevel struct {
	WarehouseID int64
	ItemID      int64
	Quantity    decimal.Decimal
	UpdatedAt   time.Time
}

// StockBatch is one receipt-derived lot of an item in a warehouse. A batch
// that reaches zero quantity is kept for audit but excluded from allocation.
type StockBatch struct {
	ID          int64
	WarehouseID int64
	ItemID      int64
	Quantity    decimal.Decimal
	ExpiryDate  *time.Time
	ReceivedAt  time.Time
	Provenance  string
	Notes       string
}

// Active reports whether the batch still holds stock.
func (b StockBatch) Active() bool {
	return b.Quantity.IsPositive()
}

// Allocation records a quantity consumed from one batch.
type Allocation struct {
	BatchID int64
	Qty     decimal.Decimal
}

// GiftKind tags the gift modeling variants.
type GiftKind string

const (
	// GiftNone means no gift units accompany the demand.
	GiftNone GiftKind = "NONE"
	// GiftSameItem adds free units of the billed item itself.
	GiftSameItem GiftKind = "SAME_ITEM"
	// GiftSeparateItem dispatches free units of a different item.
	GiftSeparateItem GiftKind = "SEPARATE_ITEM"
)

// GiftSpec describes gift units attached to an allocation request. It is
// normalised into ordinary allocations before the batch walk runs.
type GiftSpec struct {
	Kind   GiftKind
	ItemID int64
	Qty    decimal.Decimal
}

// NoGift returns the empty gift spec.
func NoGift() GiftSpec {
	return GiftSpec{Kind: GiftNone}
}

// SameItemGift returns a gift of qty free units of the billed item.
func SameItemGift(qty decimal.Decimal) GiftSpec {
	return GiftSpec{Kind: GiftSameItem, Qty: qty}
}

// SeparateItemGift returns a gift of qty units of another item.
func SeparateItemGift(itemID int64, qty decimal.Decimal) GiftSpec {
	return GiftSpec{Kind: GiftSeparateItem, ItemID: itemID, Qty: qty}
}

// SortBatchesCanonical orders batches into the canonical consumption order:
// dated batches before undated ones, earliest expiry first, then earliest
// received-at, with batch id as the final tiebreak so the order is total.
func SortBatchesCanonical(batches []StockBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		switch {
		case a.ExpiryDate != nil && b.ExpiryDate == nil:
			return true
		case a.ExpiryDate == nil && b.ExpiryDate != nil:
			return false
		case a.ExpiryDate != nil && b.ExpiryDate != nil && !a.ExpiryDate.Equal(*b.ExpiryDate):
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		return a.ID < b.ID
	})
}

// Sentinel errors for the ledger error taxonomy.
var (
	// ErrInsufficientStock signals that a requested quantity exceeds what is
	// available. It is expected business flow and must reach the caller.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrInsufficientBatchQuantity signals a debit larger than the batch
	// holds. It indicates a concurrency bug or bad candidate computation.
	ErrInsufficientBatchQuantity = errors.New("ledger: insufficient batch quantity")
	// ErrInvalidTransferTarget rejects transfers where source equals destination.
	ErrInvalidTransferTarget = errors.New("ledger: transfer source equals destination")
	// ErrBatchNotFound indicates a malformed batch reference.
	ErrBatchNotFound = errors.New("ledger: batch not found")
	// ErrStockRowNotFound indicates a missing stock level row.
	ErrStockRowNotFound = errors.New("ledger: stock row not found")
	// ErrInvalidQuantity rejects non-positive quantities.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")
)

// InsufficientStockError carries the identity and amounts of a rejected
// demand so the caller can render "only X of Y available".
type InsufficientStockError struct {
	WarehouseID int64
	ItemID      int64
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock for item %d in warehouse %d: requested %s, available %s",
		e.ItemID, e.WarehouseID, e.Requested.String(), e.Available.String())
}

// Unwrap lets errors.Is match ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// InsufficientBatchQuantityError reports an over-debit of a single batch.
type InsufficientBatchQuantityError struct {
	BatchID   int64
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBatchQuantityError) Error() string {
	return fmt.Sprintf("ledger: batch %d holds %s, cannot debit %s",
		e.BatchID, e.Available.String(), e.Requested.String())
}

// Unwrap lets errors.Is match ErrInsufficientBatchQuantity.
func (e *InsufficientBatchQuantityError) Unwrap() error {
	return ErrInsufficientBatchQuantity
}

package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind enumerates the append-only ledger event types.
type EventKind string

const (
	// EventReceipt records stock received from procurement.
	EventReceipt EventKind = "RECEIPT"
	// EventDelivery records stock physically dispatched to a customer.
	EventDelivery EventKind = "DELIVERY"
	// EventTransferIn records stock arriving from another warehouse.
	EventTransferIn EventKind = "TRANSFER_IN"
	// EventTransferOut records stock leaving for another warehouse.
	EventTransferOut EventKind = "TRANSFER_OUT"
	// EventDemand records an undelivered invoice line. It never moves
	// physical stock; reconciliation reports it as pending outgoing.
	EventDemand EventKind = "DEMAND"
)

// Event is an immutable fact consumed by the movement reconciliation engine.
type Event struct {
	ID                     int64
	Kind                   EventKind
	WarehouseID            int64
	ItemID                 int64
	Qty                    decimal.Decimal
	GiftQty                decimal.Decimal
	CounterpartWarehouseID int64
	Ref                    string
	ActorID                int64
	OccurredAt             time.Time
}

// Physical reports whether the event moves physical stock.
func (e Event) Physical() bool {
	return e.Kind != EventDemand
}

// SignedTotal returns the event's effect on physical stock, gift units
// included (they occupy the same shelf space as billed units).
func (e Event) SignedTotal() decimal.Decimal {
	total := e.Qty.Add(e.GiftQty)
	switch e.Kind {
	case EventReceipt, EventTransferIn:
		return total
	case EventDelivery, EventTransferOut:
		return total.Neg()
	default:
		return decimal.Zero
	}
}

package movement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/ledger"
)

// Pair identifies one (warehouse, item) combination.
type Pair struct {
	WarehouseID int64
	ItemID      int64
}

// DailyMovement is the reconciled stock movement of one (warehouse, item)
// pair for one calendar day. Persisted rows are authoritative; absent rows
// are derived from the event log and cache-filled.
type DailyMovement struct {
	WarehouseID     int64           `json:"warehouse_id"`
	ItemID          int64           `json:"item_id"`
	Day             time.Time       `json:"day"`
	Opening         decimal.Decimal `json:"opening"`
	Incoming        decimal.Decimal `json:"incoming"`
	Outgoing        decimal.Decimal `json:"outgoing"`
	PendingOutgoing decimal.Decimal `json:"pending_outgoing"`
	IncomingGifts   decimal.Decimal `json:"incoming_gifts"`
	OutgoingGifts   decimal.Decimal `json:"outgoing_gifts"`
	Closing         decimal.Decimal `json:"closing"`
}

// ComputeClosing applies the balance identity:
// closing = opening + incoming + incomingGifts - outgoing - pendingOutgoing - outgoingGifts.
func (m DailyMovement) ComputeClosing() decimal.Decimal {
	return m.Opening.
		Add(m.Incoming).
		Add(m.IncomingGifts).
		Sub(m.Outgoing).
		Sub(m.PendingOutgoing).
		Sub(m.OutgoingGifts)
}

// ErrInvalidRange rejects queries where from is after to.
var ErrInvalidRange = errors.New("movement: from must not be after to")

// DayOf truncates a timestamp to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// aggregateDay folds one day's events into the movement columns. Transfers
// move billed and gift units together, so both land in the base columns;
// receipts and deliveries keep their gift portions separate for reporting.
func aggregateDay(events []ledger.Event) (incoming, outgoing, pending, incomingGifts, outgoingGifts decimal.Decimal) {
	for _, evt := range events {
		switch evt.Kind {
		case ledger.EventReceipt:
			incoming = incoming.Add(evt.Qty)
			incomingGifts = incomingGifts.Add(evt.GiftQty)
		case ledger.EventTransferIn:
			incoming = incoming.Add(evt.Qty).Add(evt.GiftQty)
		case ledger.EventDelivery:
			outgoing = outgoing.Add(evt.Qty)
			outgoingGifts = outgoingGifts.Add(evt.GiftQty)
		case ledger.EventTransferOut:
			outgoing = outgoing.Add(evt.Qty).Add(evt.GiftQty)
		case ledger.EventDemand:
			pending = pending.Add(evt.Qty).Add(evt.GiftQty)
		}
	}
	return incoming, outgoing, pending, incomingGifts, outgoingGifts
}

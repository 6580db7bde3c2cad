package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// batchConsumption pairs an allocation with the batch it debited, so
// transfers can mirror provenance at the destination.
type batchConsumption struct {
	Allocation Allocation
	Source     StockBatch
}

// allocateLocked removes required units from a (warehouse, item) pair inside
// an open transaction. It verifies the aggregate first, walks active batches
// in canonical order, debits them, and finally decrements the aggregate by
// the full amount. Any shortfall fails the whole transaction; no partial
// debit survives.
func allocateLocked(ctx context.Context, tx TxRepository, warehouseID, itemID int64, required decimal.Decimal) ([]batchConsumption, error) {
	level, err := tx.GetStockLevelForUpdate(ctx, warehouseID, itemID)
	if err != nil && !errors.Is(err, ErrStockRowNotFound) {
		return nil, err
	}
	if level.Quantity.LessThan(required) {
		return nil, &InsufficientStockError{
			WarehouseID: warehouseID,
			ItemID:      itemID,
			Requested:   required,
			Available:   level.Quantity,
		}
	}

	consumed, err := consumeBatches(ctx, tx, warehouseID, itemID, required)
	if err != nil {
		return nil, err
	}

	level.Quantity = level.Quantity.Sub(required)
	if err := tx.UpsertStockLevel(ctx, level); err != nil {
		return nil, err
	}
	return consumed, nil
}

// consumeBatches walks the pair's active batches in canonical order and
// debits min(batch remainder, still needed) from each until required is met.
// Pairs without any batches are scalar-tracked: the aggregate alone is
// authoritative and the walk returns no allocations. If batches exist but
// run out before required is met, the aggregate check raced with a
// concurrent writer and the operation fails as a unit.
func consumeBatches(ctx context.Context, tx TxRepository, warehouseID, itemID int64, required decimal.Decimal) ([]batchConsumption, error) {
	batches, err := tx.ListActiveBatchesForUpdate(ctx, warehouseID, itemID)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, nil
	}
	SortBatchesCanonical(batches)

	needed := required
	var consumed []batchConsumption
	for _, batch := range batches {
		if !needed.IsPositive() {
			break
		}
		take := decimal.Min(batch.Quantity, needed)
		if _, err := tx.DebitBatch(ctx, batch.ID, take); err != nil {
			return nil, err
		}
		consumed = append(consumed, batchConsumption{
			Allocation: Allocation{BatchID: batch.ID, Qty: take},
			Source:     batch,
		})
		needed = needed.Sub(take)
	}
	if needed.IsPositive() {
		available := required.Sub(needed)
		return nil, &InsufficientStockError{
			WarehouseID: warehouseID,
			ItemID:      itemID,
			Requested:   required,
			Available:   available,
		}
	}
	return consumed, nil
}

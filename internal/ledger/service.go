package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort abstracts the ledger counters.
type MetricsPort interface {
	ObserveAllocation(outcome string)
	ObserveInsufficientStock(op string)
	ObserveTransfer()
	ObserveReceipt()
}

// Service coordinates the stock ledger operations.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, now: time.Now}
}

// ReceiveInput describes a procurement receipt line.
type ReceiveInput struct {
	WarehouseID int64
	ItemID      int64
	Qty         decimal.Decimal
	GiftQty     decimal.Decimal
	ExpiryDate  *time.Time
	Provenance  string
	Notes       string
	ActorID     int64
	OccurredAt  time.Time
}

// Receive creates one batch per receipt line, folding gift units into the
// same batch, and increments the stock level in the same transaction.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (int64, error) {
	if input.WarehouseID == 0 || input.ItemID == 0 {
		return 0, errors.New("ledger: warehouse and item required")
	}
	if !input.Qty.IsPositive() {
		return 0, ErrInvalidQuantity
	}
	if input.GiftQty.IsNegative() {
		return 0, fmt.Errorf("ledger: gift quantity must not be negative: %w", ErrInvalidQuantity)
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	total := input.Qty.Add(input.GiftQty)
	var batchID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// The claim commits or rolls back with the stock mutation, so a
		// failed receipt never leaves a key behind blocking the re-post.
		if input.Provenance != "" {
			key := fmt.Sprintf("receipt:%s:%d:%d", input.Provenance, input.WarehouseID, input.ItemID)
			if err := tx.ClaimIdempotencyKey(ctx, key); err != nil {
				return err
			}
		}

		level, err := tx.GetStockLevelForUpdate(ctx, input.WarehouseID, input.ItemID)
		if err != nil && !errors.Is(err, ErrStockRowNotFound) {
			return err
		}

		batchID, err = tx.InsertBatch(ctx, StockBatch{
			WarehouseID: input.WarehouseID,
			ItemID:      input.ItemID,
			Quantity:    total,
			ExpiryDate:  input.ExpiryDate,
			ReceivedAt:  occurredAt,
			Provenance:  input.Provenance,
			Notes:       input.Notes,
		})
		if err != nil {
			return err
		}

		level.Quantity = level.Quantity.Add(total)
		if err := tx.UpsertStockLevel(ctx, level); err != nil {
			return err
		}

		return tx.InsertEvent(ctx, Event{
			Kind:        EventReceipt,
			WarehouseID: input.WarehouseID,
			ItemID:      input.ItemID,
			Qty:         input.Qty,
			GiftQty:     input.GiftQty,
			Ref:         input.Provenance,
			ActorID:     input.ActorID,
			OccurredAt:  occurredAt,
		})
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.ObserveReceipt()
	}
	s.recordAudit(ctx, input.ActorID, "ledger:receive", "stock_batch", fmt.Sprintf("%d", batchID), shared.AuditMeta{
		"warehouse_id": input.WarehouseID,
		"item_id":      input.ItemID,
		"qty":          input.Qty.String(),
		"gift_qty":     input.GiftQty.String(),
		"provenance":   input.Provenance,
	})
	return batchID, nil
}

// AllocateInput describes a demand against one (warehouse, item) pair.
// The caller owns per-order bookkeeping for partial shipments and requests
// only the remaining delta; the engine is stateless per call.
type AllocateInput struct {
	WarehouseID int64
	ItemID      int64
	Qty         decimal.Decimal
	Gift        GiftSpec
	Ref         string
	ActorID     int64
	OccurredAt  time.Time
}

// allocationDemand is one normalised (item, qty, giftQty) unit of work.
type allocationDemand struct {
	itemID  int64
	qty     decimal.Decimal
	giftQty decimal.Decimal
}

// Allocate removes the requested quantity (plus any gift units) from stock,
// consuming batches in expiry-first/FIFO order. Gift specs are normalised
// into ordinary demands before the walk runs; the engine never special-cases
// gifts. All demands of one call commit or roll back together.
func (s *Service) Allocate(ctx context.Context, input AllocateInput) ([]Allocation, error) {
	if input.WarehouseID == 0 || input.ItemID == 0 {
		return nil, errors.New("ledger: warehouse and item required")
	}
	if !input.Qty.IsPositive() {
		return nil, ErrInvalidQuantity
	}
	demands, err := normalizeGift(input)
	if err != nil {
		return nil, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}

	var allocations []Allocation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		allocations = allocations[:0]
		for _, demand := range demands {
			required := demand.qty.Add(demand.giftQty)
			consumed, err := allocateLocked(ctx, tx, input.WarehouseID, demand.itemID, required)
			if err != nil {
				return err
			}
			for _, c := range consumed {
				allocations = append(allocations, c.Allocation)
			}
			if err := tx.InsertEvent(ctx, Event{
				Kind:        EventDelivery,
				WarehouseID: input.WarehouseID,
				ItemID:      demand.itemID,
				Qty:         demand.qty,
				GiftQty:     demand.giftQty,
				Ref:         input.Ref,
				ActorID:     input.ActorID,
				OccurredAt:  occurredAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			if errors.Is(err, ErrInsufficientStock) {
				s.metrics.ObserveInsufficientStock("allocate")
				s.metrics.ObserveAllocation("rejected")
			}
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveAllocation("ok")
	}
	s.recordAudit(ctx, input.ActorID, "ledger:allocate", "stock_level", fmt.Sprintf("%d:%d", input.WarehouseID, input.ItemID), shared.AuditMeta{
		"qty":  input.Qty.String(),
		"ref":  input.Ref,
		"gift": string(input.Gift.Kind),
	})
	return allocations, nil
}

// normalizeGift folds the gift spec into ordinary demands.
func normalizeGift(input AllocateInput) ([]allocationDemand, error) {
	base := allocationDemand{itemID: input.ItemID, qty: input.Qty}
	switch input.Gift.Kind {
	case GiftNone, "":
		return []allocationDemand{base}, nil
	case GiftSameItem:
		if input.Gift.Qty.IsNegative() {
			return nil, ErrInvalidQuantity
		}
		base.giftQty = input.Gift.Qty
		return []allocationDemand{base}, nil
	case GiftSeparateItem:
		if input.Gift.ItemID == 0 {
			return nil, errors.New("ledger: gift item required")
		}
		if !input.Gift.Qty.IsPositive() {
			return nil, ErrInvalidQuantity
		}
		return []allocationDemand{base, {itemID: input.Gift.ItemID, giftQty: input.Gift.Qty}}, nil
	default:
		return nil, fmt.Errorf("ledger: unknown gift kind %q", input.Gift.Kind)
	}
}

// TransferInput describes an inter-warehouse stock move.
type TransferInput struct {
	FromWarehouseID int64
	ToWarehouseID   int64
	ItemID          int64
	Qty             decimal.Decimal
	ActorID         int64
	OccurredAt      time.Time
}

// Transfer atomically moves quantity between warehouses. Source batches are
// debited in canonical order and mirrored at the destination so expiry and
// receipt provenance survive the move; units drawn from a scalar-tracked
// source become an undated batch when the destination tracks batches, and a
// scalar-tracked destination absorbs the quantity alone. Both sides commit
// together or not at all.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (string, error) {
	if input.FromWarehouseID == 0 || input.ToWarehouseID == 0 || input.ItemID == 0 {
		return "", errors.New("ledger: warehouse and item required")
	}
	if input.FromWarehouseID == input.ToWarehouseID {
		return "", ErrInvalidTransferTarget
	}
	if !input.Qty.IsPositive() {
		return "", ErrInvalidQuantity
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}
	transferID := uuid.NewString()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		consumed, err := allocateLocked(ctx, tx, input.FromWarehouseID, input.ItemID, input.Qty)
		if err != nil {
			return err
		}

		dest, err := tx.GetStockLevelForUpdate(ctx, input.ToWarehouseID, input.ItemID)
		if err != nil && !errors.Is(err, ErrStockRowNotFound) {
			return err
		}
		destBatches, err := tx.ListActiveBatchesForUpdate(ctx, input.ToWarehouseID, input.ItemID)
		if err != nil {
			return err
		}

		// A destination with active batches (or nothing at all) tracks stock
		// at batch level, so every transferred unit needs a batch row there.
		// A scalar-tracked destination keeps its quantity as the sole truth.
		note := fmt.Sprintf("transfer %s from warehouse %d", transferID, input.FromWarehouseID)
		if len(destBatches) > 0 || dest.Quantity.IsZero() {
			moved := decimal.Zero
			for _, c := range consumed {
				moved = moved.Add(c.Allocation.Qty)
				if _, err := tx.InsertBatch(ctx, StockBatch{
					WarehouseID: input.ToWarehouseID,
					ItemID:      input.ItemID,
					Quantity:    c.Allocation.Qty,
					ExpiryDate:  c.Source.ExpiryDate,
					ReceivedAt:  c.Source.ReceivedAt,
					Provenance:  c.Source.Provenance,
					Notes:       note,
				}); err != nil {
					return err
				}
			}
			// Units drawn from a scalar-tracked source carry no lot history;
			// an undated batch keeps the destination's batch sum whole.
			if remainder := input.Qty.Sub(moved); remainder.IsPositive() {
				if _, err := tx.InsertBatch(ctx, StockBatch{
					WarehouseID: input.ToWarehouseID,
					ItemID:      input.ItemID,
					Quantity:    remainder,
					ReceivedAt:  occurredAt,
					Notes:       note,
				}); err != nil {
					return err
				}
			}
		}

		dest.Quantity = dest.Quantity.Add(input.Qty)
		if err := tx.UpsertStockLevel(ctx, dest); err != nil {
			return err
		}

		out := Event{
			Kind:                   EventTransferOut,
			WarehouseID:            input.FromWarehouseID,
			ItemID:                 input.ItemID,
			Qty:                    input.Qty,
			CounterpartWarehouseID: input.ToWarehouseID,
			Ref:                    transferID,
			ActorID:                input.ActorID,
			OccurredAt:             occurredAt,
		}
		if err := tx.InsertEvent(ctx, out); err != nil {
			return err
		}
		in := out
		in.Kind = EventTransferIn
		in.WarehouseID = input.ToWarehouseID
		in.CounterpartWarehouseID = input.FromWarehouseID
		return tx.InsertEvent(ctx, in)
	})
	if err != nil {
		if s.metrics != nil && errors.Is(err, ErrInsufficientStock) {
			s.metrics.ObserveInsufficientStock("transfer")
		}
		return "", err
	}

	if s.metrics != nil {
		s.metrics.ObserveTransfer()
	}
	s.recordAudit(ctx, input.ActorID, "ledger:transfer", "transfer", transferID, shared.AuditMeta{
		"from":    input.FromWarehouseID,
		"to":      input.ToWarehouseID,
		"item_id": input.ItemID,
		"qty":     input.Qty.String(),
	})
	return transferID, nil
}

// DemandInput records an undelivered invoice line for reporting.
type DemandInput struct {
	WarehouseID int64
	ItemID      int64
	Qty         decimal.Decimal
	GiftQty     decimal.Decimal
	Ref         string
	ActorID     int64
	OccurredAt  time.Time
}

// RecordDemand appends a DEMAND event. It never touches physical stock; the
// reconciliation engine reports it as pending outgoing until delivery.
func (s *Service) RecordDemand(ctx context.Context, input DemandInput) error {
	if input.WarehouseID == 0 || input.ItemID == 0 {
		return errors.New("ledger: warehouse and item required")
	}
	if !input.Qty.IsPositive() && !input.GiftQty.IsPositive() {
		return ErrInvalidQuantity
	}
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now().UTC()
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.InsertEvent(ctx, Event{
			Kind:        EventDemand,
			WarehouseID: input.WarehouseID,
			ItemID:      input.ItemID,
			Qty:         input.Qty,
			GiftQty:     input.GiftQty,
			Ref:         input.Ref,
			ActorID:     input.ActorID,
			OccurredAt:  occurredAt,
		})
	})
}

// GetQuantity returns the current stock level quantity; missing rows read
// as zero.
func (s *Service) GetQuantity(ctx context.Context, warehouseID, itemID int64) (decimal.Decimal, error) {
	if warehouseID == 0 || itemID == 0 {
		return decimal.Zero, errors.New("ledger: warehouse and item required")
	}
	level, err := s.repo.GetStockLevel(ctx, warehouseID, itemID)
	if err != nil {
		if errors.Is(err, ErrStockRowNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return level.Quantity, nil
}

// ListActiveBatches returns the pair's batches in canonical consumption order.
func (s *Service) ListActiveBatches(ctx context.Context, warehouseID, itemID int64) ([]StockBatch, error) {
	if warehouseID == 0 || itemID == 0 {
		return nil, errors.New("ledger: warehouse and item required")
	}
	batches, err := s.repo.ListActiveBatches(ctx, warehouseID, itemID)
	if err != nil {
		return nil, err
	}
	SortBatchesCanonical(batches)
	return batches, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity, entityID string, meta shared.AuditMeta) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	})
}

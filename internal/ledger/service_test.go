package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/shared"
)

type pairKey struct {
	warehouseID int64
	itemID      int64
}

// memoryRepository is an in-memory RepositoryPort with transactional
// semantics: WithTx snapshots state and restores it when the callback fails.
// insertEventErr makes the next event insert fail, to exercise rollback.
type memoryRepository struct {
	levels          map[pairKey]StockLevel
	batches         map[int64]StockBatch
	events          []Event
	idempotencyKeys map[string]bool
	nextBatchID     int64
	insertEventErr  error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		levels:          make(map[pairKey]StockLevel),
		batches:         make(map[int64]StockBatch),
		idempotencyKeys: make(map[string]bool),
	}
}

func (m *memoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapLevels := make(map[pairKey]StockLevel, len(m.levels))
	for k, v := range m.levels {
		snapLevels[k] = v
	}
	snapBatches := make(map[int64]StockBatch, len(m.batches))
	for k, v := range m.batches {
		snapBatches[k] = v
	}
	snapKeys := make(map[string]bool, len(m.idempotencyKeys))
	for k, v := range m.idempotencyKeys {
		snapKeys[k] = v
	}
	snapEvents := append([]Event(nil), m.events...)
	snapNext := m.nextBatchID

	if err := fn(ctx, &memoryTx{repo: m}); err != nil {
		m.levels = snapLevels
		m.batches = snapBatches
		m.idempotencyKeys = snapKeys
		m.events = snapEvents
		m.nextBatchID = snapNext
		return err
	}
	return nil
}

func (m *memoryRepository) GetStockLevel(_ context.Context, warehouseID, itemID int64) (StockLevel, error) {
	level, ok := m.levels[pairKey{warehouseID, itemID}]
	if !ok {
		return StockLevel{WarehouseID: warehouseID, ItemID: itemID, Quantity: decimal.Zero}, ErrStockRowNotFound
	}
	return level, nil
}

func (m *memoryRepository) ListActiveBatches(_ context.Context, warehouseID, itemID int64) ([]StockBatch, error) {
	var batches []StockBatch
	for _, b := range m.batches {
		if b.WarehouseID == warehouseID && b.ItemID == itemID && b.Active() {
			batches = append(batches, b)
		}
	}
	SortBatchesCanonical(batches)
	return batches, nil
}

type memoryTx struct {
	repo *memoryRepository
}

func (t *memoryTx) GetStockLevelForUpdate(ctx context.Context, warehouseID, itemID int64) (StockLevel, error) {
	return t.repo.GetStockLevel(ctx, warehouseID, itemID)
}

func (t *memoryTx) UpsertStockLevel(_ context.Context, level StockLevel) error {
	level.UpdatedAt = time.Now()
	t.repo.levels[pairKey{level.WarehouseID, level.ItemID}] = level
	return nil
}

func (t *memoryTx) ListActiveBatchesForUpdate(ctx context.Context, warehouseID, itemID int64) ([]StockBatch, error) {
	return t.repo.ListActiveBatches(ctx, warehouseID, itemID)
}

func (t *memoryTx) InsertBatch(_ context.Context, batch StockBatch) (int64, error) {
	t.repo.nextBatchID++
	batch.ID = t.repo.nextBatchID
	t.repo.batches[batch.ID] = batch
	return batch.ID, nil
}

func (t *memoryTx) DebitBatch(_ context.Context, batchID int64, qty decimal.Decimal) (decimal.Decimal, error) {
	batch, ok := t.repo.batches[batchID]
	if !ok {
		return decimal.Zero, ErrBatchNotFound
	}
	if batch.Quantity.LessThan(qty) {
		return decimal.Zero, &InsufficientBatchQuantityError{BatchID: batchID, Requested: qty, Available: batch.Quantity}
	}
	batch.Quantity = batch.Quantity.Sub(qty)
	t.repo.batches[batchID] = batch
	return batch.Quantity, nil
}

func (t *memoryTx) InsertEvent(_ context.Context, evt Event) error {
	if t.repo.insertEventErr != nil {
		return t.repo.insertEventErr
	}
	evt.ID = int64(len(t.repo.events) + 1)
	t.repo.events = append(t.repo.events, evt)
	return nil
}

func (t *memoryTx) ClaimIdempotencyKey(_ context.Context, key string) error {
	if t.repo.idempotencyKeys[key] {
		return shared.ErrIdempotencyConflict
	}
	t.repo.idempotencyKeys[key] = true
	return nil
}

func newTestService(repo *memoryRepository) *Service {
	svc := NewService(repo, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc
}

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

// requireConsistent asserts the aggregate equals the sum of active batch
// quantities whenever batches exist for the pair.
func requireConsistent(t *testing.T, repo *memoryRepository, warehouseID, itemID int64) {
	t.Helper()
	batches, err := repo.ListActiveBatches(context.Background(), warehouseID, itemID)
	require.NoError(t, err)
	if len(batches) == 0 {
		return
	}
	sum := decimal.Zero
	for _, b := range batches {
		sum = sum.Add(b.Quantity)
	}
	level, err := repo.GetStockLevel(context.Background(), warehouseID, itemID)
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(sum),
		"stock level %s != batch sum %s for warehouse %d item %d", level.Quantity, sum, warehouseID, itemID)
}

func TestReceiveFoldsGiftUnitsIntoBatch(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	batchID, err := svc.Receive(ctx, ReceiveInput{
		WarehouseID: 1, ItemID: 7,
		Qty: qty("100"), GiftQty: qty("5"),
		Provenance: "PO-1001",
	})
	require.NoError(t, err)
	require.NotZero(t, batchID)

	level, err := repo.GetStockLevel(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(qty("105")))

	batch := repo.batches[batchID]
	require.True(t, batch.Quantity.Equal(qty("105")))
	require.Equal(t, "PO-1001", batch.Provenance)

	require.Len(t, repo.events, 1)
	evt := repo.events[0]
	require.Equal(t, EventReceipt, evt.Kind)
	require.True(t, evt.Qty.Equal(qty("100")))
	require.True(t, evt.GiftQty.Equal(qty("5")))
	requireConsistent(t, repo, 1, 7)
}

func TestReceiveRejectsBadQuantities(t *testing.T) {
	svc := newTestService(newMemoryRepository())
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: decimal.Zero, Provenance: "PO-1"})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("10"), GiftQty: qty("-1"), Provenance: "PO-1"})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestReceiveDuplicateProvenanceConflicts(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	input := ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("10"), Provenance: "PO-1"}
	_, err := svc.Receive(ctx, input)
	require.NoError(t, err)

	_, err = svc.Receive(ctx, input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	level, err := repo.GetStockLevel(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(qty("10")), "the duplicate must not post")
}

func TestReceiveFailureReleasesIdempotencyKey(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	input := ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("10"), Provenance: "PO-1"}

	repo.insertEventErr = errors.New("connection reset")
	_, err := svc.Receive(ctx, input)
	require.Error(t, err)
	require.Empty(t, repo.idempotencyKeys, "the key rolls back with the failed receipt")

	// The re-post after the transient failure must go through.
	repo.insertEventErr = nil
	_, err = svc.Receive(ctx, input)
	require.NoError(t, err)

	level, err := repo.GetStockLevel(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(qty("10")))
}

func TestAllocateConsumesExpiryFirstThenFIFO(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	// Receive out of expiry order to prove ordering is by date, not arrival.
	b2, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("5"), ExpiryDate: datePtr(2025, 2, 1), Provenance: "PO-2"})
	require.NoError(t, err)
	b1, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("5"), ExpiryDate: datePtr(2025, 1, 1), Provenance: "PO-1"})
	require.NoError(t, err)
	b3, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("5"), Provenance: "PO-3"})
	require.NoError(t, err)

	allocations, err := svc.Allocate(ctx, AllocateInput{WarehouseID: 1, ItemID: 7, Qty: qty("7")})
	require.NoError(t, err)

	require.Len(t, allocations, 2)
	require.Equal(t, b1, allocations[0].BatchID)
	require.True(t, allocations[0].Qty.Equal(qty("5")))
	require.Equal(t, b2, allocations[1].BatchID)
	require.True(t, allocations[1].Qty.Equal(qty("2")))

	// The undated batch is untouched.
	require.True(t, repo.batches[b3].Quantity.Equal(qty("5")))
	requireConsistent(t, repo, 1, 7)
}

func TestAllocateIsAllOrNothing(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	b1, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("5"), Provenance: "PO-1"})
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, AllocateInput{WarehouseID: 1, ItemID: 7, Qty: qty("8")})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var detail *InsufficientStockError
	require.ErrorAs(t, err, &detail)
	require.True(t, detail.Requested.Equal(qty("8")))
	require.True(t, detail.Available.Equal(qty("5")))

	// Nothing was debited.
	require.True(t, repo.batches[b1].Quantity.Equal(qty("5")))
	level, err := repo.GetStockLevel(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(qty("5")))
	requireConsistent(t, repo, 1, 7)
}

func TestAllocateScalarTrackedPair(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	// Seed a level without batches, as legacy imports do.
	repo.levels[pairKey{1, 9}] = StockLevel{WarehouseID: 1, ItemID: 9, Quantity: qty("20")}

	allocations, err := svc.Allocate(ctx, AllocateInput{WarehouseID: 1, ItemID: 9, Qty: qty("6")})
	require.NoError(t, err)
	require.Empty(t, allocations)

	level, err := repo.GetStockLevel(ctx, 1, 9)
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(qty("14")))
}

func TestAllocateSameItemGift(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("50"), Provenance: "PO-1"})
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, AllocateInput{
		WarehouseID: 1, ItemID: 7, Qty: qty("10"),
		Gift: SameItemGift(qty("2")),
	})
	require.NoError(t, err)

	level, err := repo.GetStockLevel(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(qty("38")))

	evt := repo.events[len(repo.events)-1]
	require.Equal(t, EventDelivery, evt.Kind)
	require.True(t, evt.Qty.Equal(qty("10")))
	require.True(t, evt.GiftQty.Equal(qty("2")))
	requireConsistent(t, repo, 1, 7)
}

func TestAllocateSeparateItemGiftSpansBothItems(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("50"), Provenance: "PO-1"})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 8, Qty: qty("4"), Provenance: "PO-2"})
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, AllocateInput{
		WarehouseID: 1, ItemID: 7, Qty: qty("10"),
		Gift: SeparateItemGift(8, qty("3")),
	})
	require.NoError(t, err)

	billed, err := repo.GetStockLevel(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, billed.Quantity.Equal(qty("40")))
	gifted, err := repo.GetStockLevel(ctx, 1, 8)
	require.NoError(t, err)
	require.True(t, gifted.Quantity.Equal(qty("1")))
	requireConsistent(t, repo, 1, 7)
	requireConsistent(t, repo, 1, 8)
}

func TestAllocateSeparateItemGiftFailureRollsBackBilledItem(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("50"), Provenance: "PO-1"})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 8, Qty: qty("1"), Provenance: "PO-2"})
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, AllocateInput{
		WarehouseID: 1, ItemID: 7, Qty: qty("10"),
		Gift: SeparateItemGift(8, qty("3")),
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// The billed item's debit rolled back with the gift's failure.
	billed, err := repo.GetStockLevel(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, billed.Quantity.Equal(qty("50")))
	requireConsistent(t, repo, 1, 7)
}

func TestTransferMirrorsBatchProvenance(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{
		WarehouseID: 1, ItemID: 7, Qty: qty("30"),
		ExpiryDate: datePtr(2025, 6, 1), Provenance: "PO-9",
	})
	require.NoError(t, err)

	transferID, err := svc.Transfer(ctx, TransferInput{FromWarehouseID: 1, ToWarehouseID: 2, ItemID: 7, Qty: qty("12")})
	require.NoError(t, err)
	require.NotEmpty(t, transferID)

	source, err := repo.GetStockLevel(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, source.Quantity.Equal(qty("18")))
	dest, err := repo.GetStockLevel(ctx, 2, 7)
	require.NoError(t, err)
	require.True(t, dest.Quantity.Equal(qty("12")))

	destBatches, err := repo.ListActiveBatches(ctx, 2, 7)
	require.NoError(t, err)
	require.Len(t, destBatches, 1)
	require.True(t, destBatches[0].Quantity.Equal(qty("12")))
	require.NotNil(t, destBatches[0].ExpiryDate)
	require.True(t, destBatches[0].ExpiryDate.Equal(*datePtr(2025, 6, 1)))
	require.Equal(t, "PO-9", destBatches[0].Provenance)

	requireConsistent(t, repo, 1, 7)
	requireConsistent(t, repo, 2, 7)

	// Both event legs share the transfer ref.
	var in, out *Event
	for i := range repo.events {
		switch repo.events[i].Kind {
		case EventTransferIn:
			in = &repo.events[i]
		case EventTransferOut:
			out = &repo.events[i]
		}
	}
	require.NotNil(t, in)
	require.NotNil(t, out)
	require.Equal(t, transferID, in.Ref)
	require.Equal(t, transferID, out.Ref)
	require.Equal(t, int64(1), in.CounterpartWarehouseID)
	require.Equal(t, int64(2), out.CounterpartWarehouseID)
}

func TestTransferRoundTripRestoresSource(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("30"), Provenance: "PO-1"})
	require.NoError(t, err)

	_, err = svc.Transfer(ctx, TransferInput{FromWarehouseID: 1, ToWarehouseID: 2, ItemID: 7, Qty: qty("30")})
	require.NoError(t, err)
	_, err = svc.Transfer(ctx, TransferInput{FromWarehouseID: 2, ToWarehouseID: 1, ItemID: 7, Qty: qty("30")})
	require.NoError(t, err)

	source, err := repo.GetStockLevel(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, source.Quantity.Equal(qty("30")))
	dest, err := repo.GetStockLevel(ctx, 2, 7)
	require.NoError(t, err)
	require.True(t, dest.Quantity.IsZero())
	requireConsistent(t, repo, 1, 7)
}

func TestTransferFromScalarSourceKeepsDestinationBatchesWhole(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	// Legacy scalar-tracked source: a level with no batches behind it.
	repo.levels[pairKey{1, 7}] = StockLevel{WarehouseID: 1, ItemID: 7, Quantity: qty("40")}

	// Batch-tracked destination.
	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 2, ItemID: 7, Qty: qty("8"), Provenance: "PO-5"})
	require.NoError(t, err)

	transferID, err := svc.Transfer(ctx, TransferInput{FromWarehouseID: 1, ToWarehouseID: 2, ItemID: 7, Qty: qty("15")})
	require.NoError(t, err)

	source, err := repo.GetStockLevel(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, source.Quantity.Equal(qty("25")))
	dest, err := repo.GetStockLevel(ctx, 2, 7)
	require.NoError(t, err)
	require.True(t, dest.Quantity.Equal(qty("23")))

	// The un-batched units arrive as one undated batch so the destination's
	// batch sum still covers its whole level.
	destBatches, err := repo.ListActiveBatches(ctx, 2, 7)
	require.NoError(t, err)
	require.Len(t, destBatches, 2)
	var synthetic *StockBatch
	for i := range destBatches {
		if destBatches[i].Provenance == "" {
			synthetic = &destBatches[i]
		}
	}
	require.NotNil(t, synthetic)
	require.True(t, synthetic.Quantity.Equal(qty("15")))
	require.Nil(t, synthetic.ExpiryDate)
	require.Contains(t, synthetic.Notes, transferID)
	requireConsistent(t, repo, 2, 7)
}

func TestTransferIntoScalarDestinationMovesQuantityAlone(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("30"), Provenance: "PO-1"})
	require.NoError(t, err)

	// Scalar-tracked destination with stock already on hand: its aggregate
	// stays the sole source of truth, so no batches may appear there.
	repo.levels[pairKey{2, 7}] = StockLevel{WarehouseID: 2, ItemID: 7, Quantity: qty("20")}

	_, err = svc.Transfer(ctx, TransferInput{FromWarehouseID: 1, ToWarehouseID: 2, ItemID: 7, Qty: qty("12")})
	require.NoError(t, err)

	dest, err := repo.GetStockLevel(ctx, 2, 7)
	require.NoError(t, err)
	require.True(t, dest.Quantity.Equal(qty("32")))
	destBatches, err := repo.ListActiveBatches(ctx, 2, 7)
	require.NoError(t, err)
	require.Empty(t, destBatches)
	requireConsistent(t, repo, 1, 7)
}

func TestTransferRejectsSameWarehouse(t *testing.T) {
	svc := newTestService(newMemoryRepository())

	_, err := svc.Transfer(context.Background(), TransferInput{FromWarehouseID: 3, ToWarehouseID: 3, ItemID: 7, Qty: qty("1")})
	require.ErrorIs(t, err, ErrInvalidTransferTarget)
}

func TestDrainThenAllocateReportsZeroAvailable(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("100"), GiftQty: qty("5"), Provenance: "PO-1"})
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, AllocateInput{WarehouseID: 1, ItemID: 7, Qty: qty("40")})
	require.NoError(t, err)

	level, err := repo.GetStockLevel(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(qty("65")))

	_, err = svc.Transfer(ctx, TransferInput{FromWarehouseID: 1, ToWarehouseID: 2, ItemID: 7, Qty: qty("65")})
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, AllocateInput{WarehouseID: 1, ItemID: 7, Qty: qty("1")})
	require.ErrorIs(t, err, ErrInsufficientStock)

	var detail *InsufficientStockError
	require.ErrorAs(t, err, &detail)
	require.True(t, detail.Available.IsZero())
	requireConsistent(t, repo, 1, 7)
	requireConsistent(t, repo, 2, 7)
}

func TestMixedOperationsConserveStock(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	received := decimal.Zero
	receive := func(warehouseID int64, amount, gift, provenance string) {
		t.Helper()
		_, err := svc.Receive(ctx, ReceiveInput{
			WarehouseID: warehouseID, ItemID: 7,
			Qty: qty(amount), GiftQty: qty(gift), Provenance: provenance,
		})
		require.NoError(t, err)
		received = received.Add(qty(amount)).Add(qty(gift))
	}

	allocated := decimal.Zero
	allocate := func(warehouseID int64, amount string) {
		t.Helper()
		allocations, err := svc.Allocate(ctx, AllocateInput{WarehouseID: warehouseID, ItemID: 7, Qty: qty(amount)})
		require.NoError(t, err)
		for _, a := range allocations {
			allocated = allocated.Add(a.Qty)
		}
	}

	receive(1, "100", "5", "PO-A")
	receive(1, "50", "0", "PO-B")
	receive(2, "30", "0", "PO-C")
	allocate(1, "40")
	_, err := svc.Transfer(ctx, TransferInput{FromWarehouseID: 1, ToWarehouseID: 2, ItemID: 7, Qty: qty("20")})
	require.NoError(t, err)
	allocate(2, "10")

	// Every received unit is either still in an active batch somewhere or
	// was allocated out; transfers only move units between warehouses.
	onHand := decimal.Zero
	for _, b := range repo.batches {
		if b.ItemID == 7 && b.Active() {
			onHand = onHand.Add(b.Quantity)
		}
	}
	require.True(t, onHand.Add(allocated).Equal(received),
		"on hand %s + allocated %s != received %s", onHand, allocated, received)
	requireConsistent(t, repo, 1, 7)
	requireConsistent(t, repo, 2, 7)
}

func TestRecordDemandDoesNotMoveStock(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{WarehouseID: 1, ItemID: 7, Qty: qty("10"), Provenance: "PO-1"})
	require.NoError(t, err)

	require.NoError(t, svc.RecordDemand(ctx, DemandInput{WarehouseID: 1, ItemID: 7, Qty: qty("4"), Ref: "INV-55"}))

	level, err := repo.GetStockLevel(ctx, 1, 7)
	require.NoError(t, err)
	require.True(t, level.Quantity.Equal(qty("10")))

	evt := repo.events[len(repo.events)-1]
	require.Equal(t, EventDemand, evt.Kind)
	require.False(t, evt.Physical())
	require.True(t, evt.SignedTotal().IsZero())
}

func TestGetQuantityMissingRowReadsZero(t *testing.T) {
	svc := newTestService(newMemoryRepository())

	got, err := svc.GetQuantity(context.Background(), 1, 99)
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestNormalizeGiftRejectsUnknownKind(t *testing.T) {
	svc := newTestService(newMemoryRepository())

	_, err := svc.Allocate(context.Background(), AllocateInput{
		WarehouseID: 1, ItemID: 7, Qty: qty("1"),
		Gift: GiftSpec{Kind: GiftKind("BOGUS")},
	})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrInsufficientStock))
}

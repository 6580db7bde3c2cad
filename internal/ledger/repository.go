package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/platform/db"
	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStockLevel(ctx context.Context, warehouseID, itemID int64) (StockLevel, error)
	ListActiveBatches(ctx context.Context, warehouseID, itemID int64) ([]StockBatch, error)
}

// TxRepository exposes transactional operations used by the service. Every
// mutation of a stock level or batch happens through this interface so the
// aggregate and the batch set move inside one transaction scope.
type TxRepository interface {
	GetStockLevelForUpdate(ctx context.Context, warehouseID, itemID int64) (StockLevel, error)
	UpsertStockLevel(ctx context.Context, level StockLevel) error
	ListActiveBatchesForUpdate(ctx context.Context, warehouseID, itemID int64) ([]StockBatch, error)
	InsertBatch(ctx context.Context, batch StockBatch) (int64, error)
	DebitBatch(ctx context.Context, batchID int64, qty decimal.Decimal) (decimal.Decimal, error)
	InsertEvent(ctx context.Context, evt Event) error
	ClaimIdempotencyKey(ctx context.Context, key string) error
}

// Repository persists ledger data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction with
// bounded retry on serialization conflicts.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetStockLevel reads the stock level without locking. Missing rows return
// ErrStockRowNotFound with a zero-quantity level.
func (r *Repository) GetStockLevel(ctx context.Context, warehouseID, itemID int64) (StockLevel, error) {
	return scanStockLevel(r.pool.QueryRow(ctx,
		`SELECT warehouse_id, item_id, quantity, updated_at FROM stock_levels WHERE warehouse_id=$1 AND item_id=$2`,
		warehouseID, itemID), warehouseID, itemID)
}

// ListActiveBatches returns batches with remaining quantity in canonical
// consumption order.
func (r *Repository) ListActiveBatches(ctx context.Context, warehouseID, itemID int64) ([]StockBatch, error) {
	rows, err := r.pool.Query(ctx, activeBatchQuery, warehouseID, itemID)
	if err != nil {
		return nil, err
	}
	return collectBatches(rows)
}

// Canonical order is enforced in SQL too so paged readers see the same
// sequence the allocation walk consumes.
const activeBatchQuery = `SELECT id, warehouse_id, item_id, quantity, expiry_date, received_at, provenance, notes
FROM stock_batches
WHERE warehouse_id=$1 AND item_id=$2 AND quantity > 0
ORDER BY expiry_date ASC NULLS LAST, received_at ASC, id ASC`

func (r *txRepository) GetStockLevelForUpdate(ctx context.Context, warehouseID, itemID int64) (StockLevel, error) {
	return scanStockLevel(r.tx.QueryRow(ctx,
		`SELECT warehouse_id, item_id, quantity, updated_at FROM stock_levels WHERE warehouse_id=$1 AND item_id=$2 FOR UPDATE`,
		warehouseID, itemID), warehouseID, itemID)
}

func (r *txRepository) UpsertStockLevel(ctx context.Context, level StockLevel) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_levels (warehouse_id, item_id, quantity, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (warehouse_id, item_id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`,
		level.WarehouseID, level.ItemID, level.Quantity)
	return err
}

func (r *txRepository) ListActiveBatchesForUpdate(ctx context.Context, warehouseID, itemID int64) ([]StockBatch, error) {
	rows, err := r.tx.Query(ctx, activeBatchQuery+` FOR UPDATE`, warehouseID, itemID)
	if err != nil {
		return nil, err
	}
	return collectBatches(rows)
}

func (r *txRepository) InsertBatch(ctx context.Context, batch StockBatch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_batches (warehouse_id, item_id, quantity, expiry_date, received_at, provenance, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		batch.WarehouseID, batch.ItemID, batch.Quantity, batch.ExpiryDate, batch.ReceivedAt, batch.Provenance, batch.Notes).Scan(&id)
	return id, err
}

// DebitBatch decrements the batch in place. The conditional UPDATE keeps a
// racing over-debit from ever committing; zero-quantity batches are retained.
func (r *txRepository) DebitBatch(ctx context.Context, batchID int64, qty decimal.Decimal) (decimal.Decimal, error) {
	var remaining decimal.Decimal
	err := r.tx.QueryRow(ctx,
		`UPDATE stock_batches SET quantity = quantity - $2 WHERE id=$1 AND quantity >= $2 RETURNING quantity`,
		batchID, qty).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, err
	}
	var available decimal.Decimal
	lookupErr := r.tx.QueryRow(ctx, `SELECT quantity FROM stock_batches WHERE id=$1`, batchID).Scan(&available)
	if errors.Is(lookupErr, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("debit batch %d: %w", batchID, ErrBatchNotFound)
	}
	if lookupErr != nil {
		return decimal.Zero, lookupErr
	}
	return decimal.Zero, &InsufficientBatchQuantityError{BatchID: batchID, Requested: qty, Available: available}
}

func (r *txRepository) InsertEvent(ctx context.Context, evt Event) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO ledger_events (kind, warehouse_id, item_id, qty, gift_qty, counterpart_warehouse_id, ref, actor_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		string(evt.Kind), evt.WarehouseID, evt.ItemID, evt.Qty, evt.GiftQty,
		nullInt(evt.CounterpartWarehouseID), evt.Ref, nullInt(evt.ActorID), evt.OccurredAt)
	return err
}

// ClaimIdempotencyKey claims the key on this transaction, so a rollback
// releases it and a crash mid-operation cannot strand a claimed key.
func (r *txRepository) ClaimIdempotencyKey(ctx context.Context, key string) error {
	return shared.ClaimKey(ctx, r.tx, key, "ledger")
}

func scanStockLevel(row pgx.Row, warehouseID, itemID int64) (StockLevel, error) {
	var level StockLevel
	err := row.Scan(&level.WarehouseID, &level.ItemID, &level.Quantity, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{WarehouseID: warehouseID, ItemID: itemID, Quantity: decimal.Zero}, ErrStockRowNotFound
		}
		return StockLevel{}, err
	}
	return level, nil
}

func collectBatches(rows pgx.Rows) ([]StockBatch, error) {
	defer rows.Close()
	var batches []StockBatch
	for rows.Next() {
		var b StockBatch
		if err := rows.Scan(&b.ID, &b.WarehouseID, &b.ItemID, &b.Quantity, &b.ExpiryDate, &b.ReceivedAt, &b.Provenance, &b.Notes); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

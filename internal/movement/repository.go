package movement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/ledger"
)

// RepositoryPort abstracts movement persistence for the service.
type RepositoryPort interface {
	GetRange(ctx context.Context, warehouseID, itemID int64, from, to time.Time) ([]DailyMovement, error)
	GetLatestBefore(ctx context.Context, warehouseID, itemID int64, day time.Time) (DailyMovement, bool, error)
	Upsert(ctx context.Context, row DailyMovement) error
	ListEvents(ctx context.Context, warehouseID, itemID int64, from, until time.Time) ([]ledger.Event, error)
	NetChangeSince(ctx context.Context, warehouseID, itemID int64, since time.Time) (decimal.Decimal, error)
	CurrentQuantity(ctx context.Context, warehouseID, itemID int64) (decimal.Decimal, error)
	ListTouchedPairs(ctx context.Context, from, until time.Time) ([]Pair, error)
}

// Repository persists movement data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const movementColumns = `warehouse_id, item_id, day, opening, incoming, outgoing, pending_outgoing, incoming_gifts, outgoing_gifts, closing`

// GetRange returns persisted movement rows for [from, to] in ascending day order.
func (r *Repository) GetRange(ctx context.Context, warehouseID, itemID int64, from, to time.Time) ([]DailyMovement, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+`
FROM daily_stock_movements
WHERE warehouse_id=$1 AND item_id=$2 AND day BETWEEN $3 AND $4
ORDER BY day ASC`, warehouseID, itemID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []DailyMovement
	for rows.Next() {
		row, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// GetLatestBefore returns the most recent persisted row strictly before day.
func (r *Repository) GetLatestBefore(ctx context.Context, warehouseID, itemID int64, day time.Time) (DailyMovement, bool, error) {
	row, err := scanMovement(r.pool.QueryRow(ctx, `SELECT `+movementColumns+`
FROM daily_stock_movements
WHERE warehouse_id=$1 AND item_id=$2 AND day < $3
ORDER BY day DESC LIMIT 1`, warehouseID, itemID, day))
	if errors.Is(err, pgx.ErrNoRows) {
		return DailyMovement{}, false, nil
	}
	if err != nil {
		return DailyMovement{}, false, err
	}
	return row, true, nil
}

// Upsert writes one movement row, keyed on (warehouse, item, day). Concurrent
// derivations of the same day land on the same key and the last write wins;
// both compute identical values from the same committed events.
func (r *Repository) Upsert(ctx context.Context, row DailyMovement) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO daily_stock_movements (`+movementColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (warehouse_id, item_id, day) DO UPDATE SET
opening=EXCLUDED.opening, incoming=EXCLUDED.incoming, outgoing=EXCLUDED.outgoing,
pending_outgoing=EXCLUDED.pending_outgoing, incoming_gifts=EXCLUDED.incoming_gifts,
outgoing_gifts=EXCLUDED.outgoing_gifts, closing=EXCLUDED.closing`,
		row.WarehouseID, row.ItemID, row.Day, row.Opening, row.Incoming, row.Outgoing,
		row.PendingOutgoing, row.IncomingGifts, row.OutgoingGifts, row.Closing)
	return err
}

// ListEvents returns the pair's ledger events in [from, until) ordered by
// occurrence.
func (r *Repository) ListEvents(ctx context.Context, warehouseID, itemID int64, from, until time.Time) ([]ledger.Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, kind, warehouse_id, item_id, qty, gift_qty, counterpart_warehouse_id, ref, actor_id, occurred_at
FROM ledger_events
WHERE warehouse_id=$1 AND item_id=$2 AND occurred_at >= $3 AND occurred_at < $4
ORDER BY occurred_at ASC, id ASC`, warehouseID, itemID, from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			evt         ledger.Event
			kind        string
			counterpart *int64
			actor       *int64
		)
		if err := rows.Scan(&evt.ID, &kind, &evt.WarehouseID, &evt.ItemID, &evt.Qty, &evt.GiftQty, &counterpart, &evt.Ref, &actor, &evt.OccurredAt); err != nil {
			return nil, err
		}
		evt.Kind = ledger.EventKind(kind)
		if counterpart != nil {
			evt.CounterpartWarehouseID = *counterpart
		}
		if actor != nil {
			evt.ActorID = *actor
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// NetChangeSince sums the physical effect of every event at or after since.
// DEMAND events never move stock and contribute nothing.
func (r *Repository) NetChangeSince(ctx context.Context, warehouseID, itemID int64, since time.Time) (decimal.Decimal, error) {
	var net decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(CASE kind
WHEN 'RECEIPT' THEN qty + gift_qty
WHEN 'TRANSFER_IN' THEN qty + gift_qty
WHEN 'DELIVERY' THEN -(qty + gift_qty)
WHEN 'TRANSFER_OUT' THEN -(qty + gift_qty)
ELSE 0 END), 0)
FROM ledger_events
WHERE warehouse_id=$1 AND item_id=$2 AND occurred_at >= $3`, warehouseID, itemID, since).Scan(&net)
	return net, err
}

// CurrentQuantity reads the pair's stock level; missing rows read as zero.
func (r *Repository) CurrentQuantity(ctx context.Context, warehouseID, itemID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.pool.QueryRow(ctx,
		`SELECT quantity FROM stock_levels WHERE warehouse_id=$1 AND item_id=$2`,
		warehouseID, itemID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	return qty, err
}

// ListTouchedPairs returns every pair with at least one event in [from, until).
func (r *Repository) ListTouchedPairs(ctx context.Context, from, until time.Time) ([]Pair, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT warehouse_id, item_id
FROM ledger_events
WHERE occurred_at >= $1 AND occurred_at < $2
ORDER BY warehouse_id, item_id`, from, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.WarehouseID, &p.ItemID); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func scanMovement(row pgx.Row) (DailyMovement, error) {
	var m DailyMovement
	err := row.Scan(&m.WarehouseID, &m.ItemID, &m.Day, &m.Opening, &m.Incoming, &m.Outgoing,
		&m.PendingOutgoing, &m.IncomingGifts, &m.OutgoingGifts, &m.Closing)
	if err != nil {
		return DailyMovement{}, err
	}
	m.Day = DayOf(m.Day)
	return m, nil
}

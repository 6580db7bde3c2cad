package movement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/ledger"
)

// maxRangeDays bounds a single reconciliation run; longer ranges must be
// requested in pages.
const maxRangeDays = 366

// MetricsPort abstracts the movement counters.
type MetricsPort interface {
	ObserveSnapshotRows(count int)
}

// Service is the movement reconciliation engine. Persisted daily rows are
// authoritative for closed days; missing days are derived from the event
// log in ascending order (each day's opening is the prior day's closing)
// and persisted as a cache fill so later reports are plain lookups. The
// current UTC day is still open, so its row is derived on every read and
// never persisted.
type Service struct {
	repo    RepositoryPort
	cache   *Cache
	metrics MetricsPort
	group   singleflight.Group
	now     func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache *Cache, metrics MetricsPort) *Service {
	return &Service{repo: repo, cache: cache, metrics: metrics, now: time.Now}
}

// GetDailyMovement returns one row per day in [from, to] for the pair.
func (s *Service) GetDailyMovement(ctx context.Context, warehouseID, itemID int64, from, to time.Time) ([]DailyMovement, error) {
	if warehouseID == 0 || itemID == 0 {
		return nil, errors.New("movement: warehouse and item required")
	}
	from, to = DayOf(from), DayOf(to)
	if from.After(to) {
		return nil, ErrInvalidRange
	}
	if int(to.Sub(from).Hours()/24) >= maxRangeDays {
		return nil, fmt.Errorf("movement: range exceeds %d days", maxRangeDays)
	}

	keyParts := keyDaily(warehouseID, itemID, from, to)
	key, err := s.cache.BuildKey(ctx, keyParts...)
	if err != nil {
		return nil, err
	}

	var result []DailyMovement
	err = s.cache.FetchJSON(ctx, key, &result, func(ctx context.Context) (interface{}, error) {
		rows, err, _ := s.group.Do(strings.Join(keyParts, ":"), func() (interface{}, error) {
			return s.reconcileRange(ctx, warehouseID, itemID, from, to, false)
		})
		if err != nil {
			return nil, err
		}
		return rows, nil
	})
	return result, err
}

// SnapshotDay materialises the day's movement row for every pair the day's
// events touched, re-deriving over any existing row so a rerun repairs bad
// data. Returns the number of pairs processed.
func (s *Service) SnapshotDay(ctx context.Context, day time.Time) (int, error) {
	day = DayOf(day)
	pairs, err := s.repo.ListTouchedPairs(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return 0, err
	}

	for _, pair := range pairs {
		if _, err := s.reconcileRange(ctx, pair.WarehouseID, pair.ItemID, day, day, true); err != nil {
			return 0, fmt.Errorf("movement: snapshot warehouse %d item %d: %w", pair.WarehouseID, pair.ItemID, err)
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveSnapshotRows(len(pairs))
	}
	if err := s.cache.Bump(ctx); err != nil {
		return len(pairs), err
	}
	return len(pairs), nil
}

// reconcileRange computes rows for [from, to] in ascending day order.
// Derivation may start before from: when a persisted anchor row exists
// earlier in history, the chain walks forward from the day after it so the
// opening balance carries through days nobody asked about. Rows for days
// that have not closed yet are ignored and re-derived: only closed days
// are cache-filled, so the open day keeps reflecting events as they land.
// With rederive set, persisted rows inside the range are recomputed too.
func (s *Service) reconcileRange(ctx context.Context, warehouseID, itemID int64, from, to time.Time, rederive bool) ([]DailyMovement, error) {
	today := DayOf(s.now())
	persisted, err := s.repo.GetRange(ctx, warehouseID, itemID, from, to)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]DailyMovement, len(persisted))
	for _, row := range persisted {
		if rederive || !row.Day.Before(today) {
			continue
		}
		byDay[row.Day.Format("2006-01-02")] = row
	}

	chainStart, opening, err := s.openingFor(ctx, warehouseID, itemID, from, byDay)
	if err != nil {
		return nil, err
	}

	events, err := s.repo.ListEvents(ctx, warehouseID, itemID, chainStart, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	grouped := groupEventsByDay(events)

	result := make([]DailyMovement, 0, int(to.Sub(from).Hours()/24)+1)
	for day := chainStart; !day.After(to); day = day.AddDate(0, 0, 1) {
		dayKey := day.Format("2006-01-02")
		row, ok := byDay[dayKey]
		if !ok {
			incoming, outgoing, pending, inGifts, outGifts := aggregateDay(grouped[dayKey])
			row = DailyMovement{
				WarehouseID:     warehouseID,
				ItemID:          itemID,
				Day:             day,
				Opening:         opening,
				Incoming:        incoming,
				Outgoing:        outgoing,
				PendingOutgoing: pending,
				IncomingGifts:   inGifts,
				OutgoingGifts:   outGifts,
			}
			row.Closing = row.ComputeClosing()
			if day.Before(today) {
				if err := s.repo.Upsert(ctx, row); err != nil {
					return nil, err
				}
			}
		}
		opening = row.Closing
		if !day.Before(from) {
			result = append(result, row)
		}
	}
	return result, nil
}

// openingFor resolves the opening balance of the first day to derive, and
// the day the forward chain starts on. Priority: a persisted row for from
// needs no chain; a persisted anchor before from chains forward from the
// day after it; with no history at all the opening is the current stock
// level with every later event reversed out.
func (s *Service) openingFor(ctx context.Context, warehouseID, itemID int64, from time.Time, byDay map[string]DailyMovement) (time.Time, decimal.Decimal, error) {
	if row, ok := byDay[from.Format("2006-01-02")]; ok {
		return from, row.Opening, nil
	}
	anchor, found, err := s.repo.GetLatestBefore(ctx, warehouseID, itemID, from)
	if err != nil {
		return time.Time{}, decimal.Decimal{}, err
	}
	if found {
		return anchor.Day.AddDate(0, 0, 1), anchor.Closing, nil
	}

	current, err := s.repo.CurrentQuantity(ctx, warehouseID, itemID)
	if err != nil {
		return time.Time{}, decimal.Decimal{}, err
	}
	net, err := s.repo.NetChangeSince(ctx, warehouseID, itemID, from)
	if err != nil {
		return time.Time{}, decimal.Decimal{}, err
	}
	return from, current.Sub(net), nil
}

func groupEventsByDay(events []ledger.Event) map[string][]ledger.Event {
	grouped := make(map[string][]ledger.Event)
	for _, evt := range events {
		key := DayOf(evt.OccurredAt).Format("2006-01-02")
		grouped[key] = append(grouped[key], evt)
	}
	return grouped
}

package movement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/platform/httpx"
)

// Handler serves the daily movement report.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the movement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/daily", h.handleDaily)
}

type dailyRow struct {
	Day             string          `json:"day"`
	Opening         decimal.Decimal `json:"opening"`
	Incoming        decimal.Decimal `json:"incoming"`
	Outgoing        decimal.Decimal `json:"outgoing"`
	PendingOutgoing decimal.Decimal `json:"pending_outgoing"`
	IncomingGifts   decimal.Decimal `json:"incoming_gifts"`
	OutgoingGifts   decimal.Decimal `json:"outgoing_gifts"`
	Closing         decimal.Decimal `json:"closing"`
}

func (h *Handler) handleDaily(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	warehouseID, err := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	if err != nil || warehouseID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "warehouse_id is required")
		return
	}
	itemID, err := strconv.ParseInt(q.Get("item_id"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_id is required")
		return
	}

	to := DayOf(time.Now())
	if raw := q.Get("to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
	}
	from := to
	if raw := q.Get("from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
	}

	rows, err := h.service.GetDailyMovement(r.Context(), warehouseID, itemID, from, to)
	if err != nil {
		if errors.Is(err, ErrInvalidRange) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("movement report failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	views := make([]dailyRow, 0, len(rows))
	for _, row := range rows {
		views = append(views, dailyRow{
			Day:             row.Day.Format("2006-01-02"),
			Opening:         row.Opening,
			Incoming:        row.Incoming,
			Outgoing:        row.Outgoing,
			PendingOutgoing: row.PendingOutgoing,
			IncomingGifts:   row.IncomingGifts,
			OutgoingGifts:   row.OutgoingGifts,
			Closing:         row.Closing,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"warehouse_id": warehouseID,
		"item_id":      itemID,
		"days":         views,
	})
}

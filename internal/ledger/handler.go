package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/platform/httpx"
	"github.com/sajaadasyntax/ma3mora-api-sub000/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts", h.handleReceive)
	r.Post("/allocations", h.handleAllocate)
	r.Post("/transfers", h.handleTransfer)
	r.Post("/demands", h.handleDemand)
	r.Get("/stock", h.handleStock)
	r.Get("/batches", h.handleBatches)
}

type receiveRequest struct {
	WarehouseID int64           `json:"warehouse_id" validate:"required"`
	ItemID      int64           `json:"item_id" validate:"required"`
	Qty         decimal.Decimal `json:"qty"`
	GiftQty     decimal.Decimal `json:"gift_qty"`
	ExpiryDate  *string         `json:"expiry_date"`
	Provenance  string          `json:"provenance" validate:"required"`
	Notes       string          `json:"notes"`
	ActorID     int64           `json:"actor_id"`
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var expiry *time.Time
	if req.ExpiryDate != nil && *req.ExpiryDate != "" {
		parsed, err := time.Parse("2006-01-02", *req.ExpiryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expiry_date must be YYYY-MM-DD")
			return
		}
		expiry = &parsed
	}
	batchID, err := h.service.Receive(r.Context(), ReceiveInput{
		WarehouseID: req.WarehouseID,
		ItemID:      req.ItemID,
		Qty:         req.Qty,
		GiftQty:     req.GiftQty,
		ExpiryDate:  expiry,
		Provenance:  req.Provenance,
		Notes:       req.Notes,
		ActorID:     req.ActorID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"batch_id": batchID})
}

type allocateRequest struct {
	WarehouseID int64           `json:"warehouse_id" validate:"required"`
	ItemID      int64           `json:"item_id" validate:"required"`
	Qty         decimal.Decimal `json:"qty"`
	GiftKind    string          `json:"gift_kind"`
	GiftItemID  int64           `json:"gift_item_id"`
	GiftQty     decimal.Decimal `json:"gift_qty"`
	Ref         string          `json:"ref"`
	ActorID     int64           `json:"actor_id"`
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	gift := GiftSpec{Kind: GiftNone}
	switch GiftKind(req.GiftKind) {
	case GiftNone, "":
	case GiftSameItem:
		gift = SameItemGift(req.GiftQty)
	case GiftSeparateItem:
		gift = SeparateItemGift(req.GiftItemID, req.GiftQty)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown gift_kind")
		return
	}
	allocations, err := h.service.Allocate(r.Context(), AllocateInput{
		WarehouseID: req.WarehouseID,
		ItemID:      req.ItemID,
		Qty:         req.Qty,
		Gift:        gift,
		Ref:         req.Ref,
		ActorID:     req.ActorID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"allocations": allocationViews(allocations)})
}

type transferRequest struct {
	FromWarehouseID int64           `json:"from_warehouse_id" validate:"required"`
	ToWarehouseID   int64           `json:"to_warehouse_id" validate:"required"`
	ItemID          int64           `json:"item_id" validate:"required"`
	Qty             decimal.Decimal `json:"qty"`
	ActorID         int64           `json:"actor_id"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	transferID, err := h.service.Transfer(r.Context(), TransferInput{
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		ItemID:          req.ItemID,
		Qty:             req.Qty,
		ActorID:         req.ActorID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"transfer_id": transferID})
}

type demandRequest struct {
	WarehouseID int64           `json:"warehouse_id" validate:"required"`
	ItemID      int64           `json:"item_id" validate:"required"`
	Qty         decimal.Decimal `json:"qty"`
	GiftQty     decimal.Decimal `json:"gift_qty"`
	Ref         string          `json:"ref"`
	ActorID     int64           `json:"actor_id"`
}

func (h *Handler) handleDemand(w http.ResponseWriter, r *http.Request) {
	var req demandRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.RecordDemand(r.Context(), DemandInput{
		WarehouseID: req.WarehouseID,
		ItemID:      req.ItemID,
		Qty:         req.Qty,
		GiftQty:     req.GiftQty,
		Ref:         req.Ref,
		ActorID:     req.ActorID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"status": "recorded"})
}

func (h *Handler) handleStock(w http.ResponseWriter, r *http.Request) {
	warehouseID, itemID, ok := pairParams(w, r)
	if !ok {
		return
	}
	qty, err := h.service.GetQuantity(r.Context(), warehouseID, itemID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"warehouse_id": warehouseID,
		"item_id":      itemID,
		"quantity":     qty,
	})
}

func (h *Handler) handleBatches(w http.ResponseWriter, r *http.Request) {
	warehouseID, itemID, ok := pairParams(w, r)
	if !ok {
		return
	}
	batches, err := h.service.ListActiveBatches(r.Context(), warehouseID, itemID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batchViews(batches)})
}

func pairParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	q := r.URL.Query()
	warehouseID, err := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	if err != nil || warehouseID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "warehouse_id is required")
		return 0, 0, false
	}
	itemID, err := strconv.ParseInt(q.Get("item_id"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_id is required")
		return 0, 0, false
	}
	return warehouseID, itemID, true
}

type allocationView struct {
	BatchID int64           `json:"batch_id"`
	Qty     decimal.Decimal `json:"qty"`
}

func allocationViews(allocations []Allocation) []allocationView {
	views := make([]allocationView, 0, len(allocations))
	for _, a := range allocations {
		views = append(views, allocationView{BatchID: a.BatchID, Qty: a.Qty})
	}
	return views
}

type batchView struct {
	ID         int64           `json:"id"`
	Quantity   decimal.Decimal `json:"quantity"`
	ExpiryDate *string         `json:"expiry_date,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	Provenance string          `json:"provenance,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

func batchViews(batches []StockBatch) []batchView {
	views := make([]batchView, 0, len(batches))
	for _, b := range batches {
		view := batchView{
			ID:         b.ID,
			Quantity:   b.Quantity,
			ReceivedAt: b.ReceivedAt,
			Provenance: b.Provenance,
			Notes:      b.Notes,
		}
		if b.ExpiryDate != nil {
			formatted := b.ExpiryDate.Format("2006-01-02")
			view.ExpiryDate = &formatted
		}
		views = append(views, view)
	}
	return views
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidTransferTarget),
		errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrBatchNotFound), errors.Is(err, ErrStockRowNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInsufficientBatchQuantity):
		h.logger.Error("batch over-debit detected", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	default:
		h.logger.Error("ledger operation failed", slog.Any("error", err), slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

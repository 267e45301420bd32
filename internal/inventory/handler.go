package inventory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/atlas-erp/atlas-erp/internal/platform/httpx"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/items", func(r chi.Router) {
		r.Post("/", h.createItem)
		r.Get("/", h.listItems)
		r.Get("/{id}", h.getItem)
		r.Put("/{id}/levels", h.updateLevels)
		r.Delete("/{id}", h.deleteItem)
	})
	r.Route("/movements", func(r chi.Router) {
		r.Post("/", h.recordMovement)
		r.Get("/", h.listMovements)
		r.Get("/{id}", h.getMovement)
		r.Post("/{id}/approve", h.approveMovement)
		r.Post("/{id}/reject", h.rejectMovement)
		r.Post("/{id}/cancel", h.cancelMovement)
	})
}

type createItemRequest struct {
	SKU          string `json:"sku" validate:"required,max=64"`
	Name         string `json:"name" validate:"required,max=255"`
	Unit         string `json:"unit" validate:"required,max=32"`
	OpeningStock int64  `json:"opening_stock" validate:"gte=0"`
	MinimumStock int64  `json:"minimum_stock" validate:"gte=0"`
	MaximumStock *int64 `json:"maximum_stock,omitempty"`
	ReorderPoint int64  `json:"reorder_point" validate:"gte=0"`
}

type updateLevelsRequest struct {
	MinimumStock int64  `json:"minimum_stock" validate:"gte=0"`
	MaximumStock *int64 `json:"maximum_stock,omitempty"`
	ReorderPoint int64  `json:"reorder_point" validate:"gte=0"`
}

type movementRequest struct {
	ItemID      int64  `json:"item_id" validate:"required,gt=0"`
	Type        string `json:"type" validate:"required"`
	Quantity    int64  `json:"quantity"`
	TargetStock *int64 `json:"target_stock,omitempty"`
	OwnerType   string `json:"owner_type,omitempty"`
	OwnerID     int64  `json:"owner_id,omitempty"`
	Remarks     string `json:"remarks,omitempty" validate:"max=500"`
}

type decisionRequest struct {
	Remarks string `json:"remarks,omitempty" validate:"max=500"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	item, err := h.service.CreateItem(r.Context(), CreateItemInput{
		SKU:          req.SKU,
		Name:         req.Name,
		Unit:         req.Unit,
		OpeningStock: req.OpeningStock,
		MinimumStock: req.MinimumStock,
		MaximumStock: req.MaximumStock,
		ReorderPoint: req.ReorderPoint,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PaginationFromQuery(q)
	filter := ItemFilter{
		Search:       q.Get("search"),
		LowStock:     q.Get("low_stock") == "true",
		NeedsReorder: q.Get("needs_reorder") == "true",
		Limit:        page.Limit,
		Offset:       page.Offset(),
	}
	items, total, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.List(w, items, total, filter.Limit, filter.Offset)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) updateLevels(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateLevelsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	item, err := h.service.UpdateItemLevels(r.Context(), id, UpdateLevelsInput{
		MinimumStock: req.MinimumStock,
		MaximumStock: req.MaximumStock,
		ReorderPoint: req.ReorderPoint,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteItem(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recordMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	movement, err := h.service.RecordMovement(r.Context(), MovementInput{
		ItemID:      req.ItemID,
		Type:        MovementType(req.Type),
		Quantity:    req.Quantity,
		TargetStock: req.TargetStock,
		Owner:       Owner{Type: req.OwnerType, ID: req.OwnerID},
		Remarks:     req.Remarks,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PaginationFromQuery(q)
	filter := MovementFilter{
		OwnerType: q.Get("owner_type"),
		Limit:     page.Limit,
		Offset:    page.Offset(),
	}
	if itemStr := q.Get("item_id"); itemStr != "" {
		id, err := strconv.ParseInt(itemStr, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "item_id must be an integer")
			return
		}
		filter.ItemID = id
	}
	if statusStr := q.Get("status"); statusStr != "" {
		status := MovementStatus(statusStr)
		filter.Status = &status
	}
	movements, total, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.List(w, movements, total, filter.Limit, filter.Offset)
}

func (h *Handler) getMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	movement, err := h.service.GetMovement(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movement)
}

func (h *Handler) approveMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := h.service.ApproveMovement(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) rejectMovement(w http.ResponseWriter, r *http.Request) {
	h.decideMovement(w, r, h.service.RejectMovement)
}

func (h *Handler) cancelMovement(w http.ResponseWriter, r *http.Request) {
	h.decideMovement(w, r, h.service.CancelMovement)
}

func (h *Handler) decideMovement(w http.ResponseWriter, r *http.Request, decide func(context.Context, int64, int64, string) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req decisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	if err := decide(r.Context(), id, shared.ActorFromContext(r.Context()), req.Remarks); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientStockError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "inventory record not found")
	case errors.As(err, &insufficient):
		httpx.JSON(w, http.StatusConflict, map[string]any{
			"title":     "Insufficient Stock",
			"status":    http.StatusConflict,
			"detail":    insufficient.Error(),
			"available": insufficient.Available,
			"requested": insufficient.Requested,
		})
	case errors.Is(err, ErrMovementFinal):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidMovementType),
		errors.Is(err, ErrInvalidStockLevels),
		errors.Is(err, ErrMissingTarget):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("inventory request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

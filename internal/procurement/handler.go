package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/atlas-erp/atlas-erp/internal/finance"
	"github.com/atlas-erp/atlas-erp/internal/lifecycle"
	"github.com/atlas-erp/atlas-erp/internal/platform/httpx"
	"github.com/atlas-erp/atlas-erp/internal/shared"
)

// Handler wires HTTP endpoints for the procurement document chain.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the procurement handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers one route group per document type.
func (h *Handler) MountRoutes(r chi.Router) {
	mount := func(prefix string, t lifecycle.DocType) {
		r.Route(prefix, func(r chi.Router) {
			r.Post("/", h.create(t))
			r.Get("/", h.list(t))
			r.Get("/{id}", h.get)
			r.Put("/{id}", h.update)
			r.Delete("/{id}", h.remove)
			r.Post("/{id}/transition", h.transition)
			r.Post("/{id}/convert", h.convert)
		})
	}
	mount("/purchase-intents", lifecycle.DocPurchaseIntent)
	mount("/purchase-orders", lifecycle.DocPurchaseOrder)
	mount("/goods-receipts", lifecycle.DocGoodsReceiptNote)
	mount("/vendor-payments", lifecycle.DocVendorPayment)
}

type lineRequest struct {
	ItemID      *int64          `json:"item_id,omitempty"`
	Description string          `json:"description" validate:"required,max=255"`
	Quantity    int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type createRequest struct {
	VendorID        int64           `json:"vendor_id" validate:"required,gt=0"`
	Subject         string          `json:"subject,omitempty" validate:"max=255"`
	Lines           []lineRequest   `json:"lines,omitempty" validate:"dive"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	OrderID         *int64          `json:"order_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Remarks         string          `json:"remarks,omitempty" validate:"max=500"`
}

type updateRequest struct {
	Subject         string          `json:"subject,omitempty" validate:"max=255"`
	Lines           []lineRequest   `json:"lines,omitempty" validate:"dive"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Remarks         string          `json:"remarks,omitempty" validate:"max=500"`
}

type transitionRequest struct {
	Status  string `json:"status" validate:"required"`
	Remarks string `json:"remarks,omitempty" validate:"max=500"`
}

type documentResponse struct {
	Document
	NextStatuses []lifecycle.Status `json:"next_statuses"`
}

func respondDocument(w http.ResponseWriter, status int, doc Document) {
	httpx.JSON(w, status, documentResponse{
		Document:     doc,
		NextStatuses: lifecycle.NextStatuses(doc.Type, doc.Status),
	})
}

func (h *Handler) create(t lifecycle.DocType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.ValidationProblem(w, err)
			return
		}
		doc, err := h.service.Create(r.Context(), CreateInput{
			Type:            t,
			VendorID:        req.VendorID,
			Subject:         req.Subject,
			Lines:           toLineInputs(req.Lines),
			TaxPercent:      req.TaxPercent,
			DiscountPercent: req.DiscountPercent,
			OrderID:         req.OrderID,
			Amount:          req.Amount,
			Remarks:         req.Remarks,
			ActorID:         shared.ActorFromContext(r.Context()),
		})
		if err != nil {
			h.respondError(w, err)
			return
		}
		respondDocument(w, http.StatusCreated, doc)
	}
}

func (h *Handler) list(t lifecycle.DocType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := shared.PaginationFromQuery(q)
		filter := Filter{Type: t, Limit: page.Limit, Offset: page.Offset()}
		if statusStr := q.Get("status"); statusStr != "" {
			status := lifecycle.Status(statusStr)
			filter.Status = &status
		}
		if approvalStr := q.Get("approval_status"); approvalStr != "" {
			approval := lifecycle.ApprovalStatus(approvalStr)
			filter.ApprovalStatus = &approval
		}
		if vendorStr := q.Get("vendor_id"); vendorStr != "" {
			id, err := strconv.ParseInt(vendorStr, 10, 64)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "vendor_id must be an integer")
				return
			}
			filter.VendorID = id
		}
		if fromStr := q.Get("from"); fromStr != "" {
			from, err := time.Parse("2006-01-02", fromStr)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "from must be YYYY-MM-DD")
				return
			}
			filter.From = from
		}
		if toStr := q.Get("to"); toStr != "" {
			to, err := time.Parse("2006-01-02", toStr)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "to must be YYYY-MM-DD")
				return
			}
			filter.To = to.AddDate(0, 0, 1)
		}
		docs, total, err := h.service.List(r.Context(), filter)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.List(w, docs, total, filter.Limit, filter.Offset)
	}
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondDocument(w, http.StatusOK, doc)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	doc, err := h.service.Update(r.Context(), id, UpdateInput{
		Subject:         req.Subject,
		Lines:           toLineInputs(req.Lines),
		TaxPercent:      req.TaxPercent,
		DiscountPercent: req.DiscountPercent,
		Remarks:         req.Remarks,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondDocument(w, http.StatusOK, doc)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	doc, err := h.service.Transition(r.Context(), id, lifecycle.Status(req.Status),
		shared.ActorFromContext(r.Context()), req.Remarks)
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondDocument(w, http.StatusOK, doc)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Convert(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	respondDocument(w, http.StatusCreated, doc)
}

func toLineInputs(lines []lineRequest) []LineInput {
	out := make([]LineInput, len(lines))
	for i, line := range lines {
		out[i] = LineInput{
			ItemID:      line.ItemID,
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		}
	}
	return out
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
	var illegal *lifecycle.IllegalTransitionError
	var invalid *finance.ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "document not found")
	case errors.As(err, &illegal):
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"title":  "Illegal Transition",
			"status": http.StatusUnprocessableEntity,
			"detail": illegal.Error(),
			"from":   string(illegal.From),
			"to":     string(illegal.To),
		})
	case errors.Is(err, lifecycle.ErrApprovalRequired),
		errors.Is(err, lifecycle.ErrAlreadyConverted),
		errors.Is(err, lifecycle.ErrInvalidSourceState),
		errors.Is(err, lifecycle.ErrNotConvertible):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrNotEditable),
		errors.Is(err, ErrNotDeletable),
		errors.Is(err, ErrOrderNotPayable),
		errors.Is(err, ErrOverpayment):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &invalid):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", invalid.Error())
	case errors.Is(err, ErrWrongType), errors.Is(err, ErrMissingOrder):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("procurement request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

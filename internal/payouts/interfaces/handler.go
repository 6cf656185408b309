package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	apihttp "qxlog/internal/api/http"
	"qxlog/internal/audit"
	"qxlog/internal/auth"
	"qxlog/internal/observability/metrics"
	payoutapp "qxlog/internal/payouts/application"
	payout "qxlog/internal/payouts/domain"
	pricing "qxlog/internal/pricing/domain"
)

const basePath = "/api/v1/payouts"

// Handler serves /api/v1/payouts routes.
type Handler struct {
	service     *payoutapp.SettlementService
	auditLogger audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *payoutapp.SettlementService, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("payout handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

type settleBody struct {
	InstrumentistID string   `json:"instrumentist_id" validate:"required"`
	ProcedureIDs    []string `json:"procedure_ids" validate:"required,min=1,dive,required"`
}

type voidBody struct {
	Reason string `json:"reason" validate:"required"`
}

type batchResponse struct {
	ID              string     `json:"id"`
	InstrumentistID string     `json:"instrumentist_id"`
	PaidByID        string     `json:"paid_by_id"`
	PaidAt          time.Time  `json:"paid_at"`
	TotalAmount     string     `json:"total_amount"`
	Status          string     `json:"status"`
	ItemCount       int        `json:"item_count"`
	VoidReason      string     `json:"void_reason,omitempty"`
	VoidedAt        *time.Time `json:"voided_at,omitempty"`
}

type itemResponse struct {
	ID          string          `json:"id"`
	ProcedureID string          `json:"procedure_id"`
	Amount      string          `json:"amount"`
	Snapshot    json.RawMessage `json:"snapshot"`
}

type batchDetailResponse struct {
	Batch batchResponse  `json:"batch"`
	Items []itemResponse `json:"items"`
}

type voucherLineResponse struct {
	Rule     pricing.Rule `json:"rule"`
	UnitRate string       `json:"unit_rate"`
	Count    int          `json:"count"`
	Subtotal string       `json:"subtotal"`
}

type voucherResponse struct {
	Batch     batchResponse         `json:"batch"`
	Lines     []voucherLineResponse `json:"lines"`
	ItemCount int                   `json:"item_count"`
	Total     string                `json:"total"`
}

// ServeHTTP routes payout requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == basePath {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleSettle(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	rest := strings.TrimPrefix(path, basePath+"/")
	if rest == path || rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, id)
	case len(parts) == 2 && parts[1] == "voucher" && r.Method == http.MethodGet:
		h.handleVoucher(w, r, id)
	case len(parts) == 2 && parts[1] == "export.pdf" && r.Method == http.MethodGet:
		h.handleExport(w, r, id, "pdf")
	case len(parts) == 2 && parts[1] == "export.xlsx" && r.Method == http.MethodGet:
		h.handleExport(w, r, id, "xlsx")
	case len(parts) == 2 && parts[1] == "void" && r.Method == http.MethodPost:
		h.handleVoid(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleSettle(w http.ResponseWriter, r *http.Request) {
	var body settleBody
	if !apihttp.DecodeJSON(w, r, &body) {
		return
	}
	batch, items, err := h.service.Settle(r.Context(), payoutapp.SettleCommand{
		InstrumentistID: body.InstrumentistID,
		OperatorID:      auth.SubjectFromContext(r.Context()),
		ProcedureIDs:    body.ProcedureIDs,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	resp := toDetailResponse(*batch, items)
	apihttp.WriteJSON(w, http.StatusCreated, resp)
	audit.Record(r, h.auditLogger, audit.Event{
		Action:          "payout.settle",
		ResourceType:    "payout_batch",
		ResourceID:      batch.ID,
		InstrumentistID: batch.InstrumentistID,
		Meta:            resp.Batch,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := payout.Filter{
		InstrumentistID: auth.ScopeInstrumentist(r.Context(), query.Get("instrumentist_id")),
		Status:          payout.Status(query.Get("status")),
	}
	var err error
	if filter.From, err = parseTimeParam(query.Get("from")); err != nil {
		apihttp.WriteError(w, http.StatusBadRequest, "invalid from")
		return
	}
	if filter.To, err = parseTimeParam(query.Get("to")); err != nil {
		apihttp.WriteError(w, http.StatusBadRequest, "invalid to")
		return
	}
	if raw := query.Get("limit"); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil || limit < 0 {
			apihttp.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	batches, err := h.service.List(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]batchResponse, 0, len(batches))
	for _, batch := range batches {
		out = append(out, toBatchResponse(batch))
	}
	apihttp.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	batch, items, err := h.service.Items(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if !auth.CanView(r.Context(), batch.InstrumentistID) {
		apihttp.WriteError(w, http.StatusForbidden, auth.ErrNotOwner.Error())
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toDetailResponse(*batch, items))
}

func (h *Handler) handleVoucher(w http.ResponseWriter, r *http.Request, id string) {
	start := time.Now()
	voucher, _, err := h.service.Voucher(r.Context(), id)
	if err != nil {
		metrics.ObserveVoucherExport("json", metrics.ResultError, time.Since(start))
		respondError(w, err)
		return
	}
	if !auth.CanView(r.Context(), voucher.Batch.InstrumentistID) {
		apihttp.WriteError(w, http.StatusForbidden, auth.ErrNotOwner.Error())
		return
	}
	resp := voucherResponse{
		Batch:     toBatchResponse(voucher.Batch),
		Lines:     make([]voucherLineResponse, 0, len(voucher.Lines)),
		ItemCount: voucher.ItemCount,
		Total:     voucher.Total.StringFixed(2),
	}
	for _, line := range voucher.Lines {
		resp.Lines = append(resp.Lines, voucherLineResponse{
			Rule:     line.Rule,
			UnitRate: line.UnitRate.StringFixed(2),
			Count:    line.Count,
			Subtotal: line.Subtotal.StringFixed(2),
		})
	}
	metrics.ObserveVoucherExport("json", metrics.ResultSuccess, time.Since(start))
	apihttp.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, id, format string) {
	start := time.Now()
	voucher, items, err := h.service.Voucher(r.Context(), id)
	if err != nil {
		metrics.ObserveVoucherExport(format, metrics.ResultError, time.Since(start))
		respondError(w, err)
		return
	}
	if !auth.CanView(r.Context(), voucher.Batch.InstrumentistID) {
		apihttp.WriteError(w, http.StatusForbidden, auth.ErrNotOwner.Error())
		return
	}
	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = BuildVoucherPDF(voucher, items)
		contentType = "application/pdf"
	default:
		data, err = BuildVoucherXLSX(voucher, items)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		metrics.ObserveVoucherExport(format, metrics.ResultError, time.Since(start))
		apihttp.WriteError(w, http.StatusInternalServerError, "export failed")
		return
	}
	metrics.ObserveVoucherExport(format, metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=voucher-"+id+"."+format)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	audit.Record(r, h.auditLogger, audit.Event{
		Action:          "payout.export",
		ResourceType:    "payout_batch",
		ResourceID:      id,
		InstrumentistID: voucher.Batch.InstrumentistID,
		Meta:            map[string]any{"format": format, "bytes": len(data)},
	})
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request, id string) {
	var body voidBody
	if !apihttp.DecodeJSON(w, r, &body) {
		return
	}
	batch, err := h.service.Void(r.Context(), id, body.Reason, auth.SubjectFromContext(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	resp := toBatchResponse(*batch)
	apihttp.WriteJSON(w, http.StatusOK, resp)
	audit.Record(r, h.auditLogger, audit.Event{
		Action:          "payout.void",
		ResourceType:    "payout_batch",
		ResourceID:      batch.ID,
		InstrumentistID: batch.InstrumentistID,
		Meta:            map[string]string{"reason": batch.VoidReason},
	})
}

func parseTimeParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return pricing.ParseDate(value)
}

func toBatchResponse(b payout.Batch) batchResponse {
	resp := batchResponse{
		ID:              b.ID,
		InstrumentistID: b.InstrumentistID,
		PaidByID:        b.PaidByID,
		PaidAt:          b.PaidAt,
		TotalAmount:     b.TotalAmount.StringFixed(2),
		Status:          string(b.Status),
		ItemCount:       b.ItemCount,
		VoidReason:      b.VoidReason,
	}
	if !b.VoidedAt.IsZero() {
		voidedAt := b.VoidedAt
		resp.VoidedAt = &voidedAt
	}
	return resp
}

func toDetailResponse(b payout.Batch, items []payout.Item) batchDetailResponse {
	resp := batchDetailResponse{Batch: toBatchResponse(b), Items: make([]itemResponse, 0, len(items))}
	for _, item := range items {
		snapshot, _ := json.Marshal(item.Snapshot)
		resp.Items = append(resp.Items, itemResponse{
			ID:          item.ID,
			ProcedureID: item.ProcedureID,
			Amount:      item.Amount.StringFixed(2),
			Snapshot:    snapshot,
		})
	}
	return resp
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payout.ErrStaleSelection):
		apihttp.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, payout.ErrBatchVoided):
		apihttp.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, payout.ErrEmptySelection),
		errors.Is(err, payout.ErrInvalidBatch),
		errors.Is(err, payout.ErrVoidReasonRequired):
		apihttp.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, payout.ErrBatchNotFound):
		apihttp.WriteError(w, http.StatusNotFound, err.Error())
	default:
		apihttp.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	apihttp "qxlog/internal/api/http"
	"qxlog/internal/audit"
	"qxlog/internal/auth"
	pricingapp "qxlog/internal/pricing/application"
	pricing "qxlog/internal/pricing/domain"
	procedureapp "qxlog/internal/procedures/application"
	procedure "qxlog/internal/procedures/domain"
)

const basePath = "/api/v1/procedures"

// Handler serves /api/v1/procedures routes.
type Handler struct {
	service     *procedureapp.Service
	auditLogger audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *procedureapp.Service, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("procedure handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

type participantBody struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type detailsBody struct {
	ProcedureDate  string          `json:"procedure_date" validate:"required"`
	StartTime      string          `json:"start_time" validate:"required"`
	EndTime        string          `json:"end_time" validate:"required"`
	PatientName    string          `json:"patient_name" validate:"required"`
	ProcedureType  string          `json:"procedure_type" validate:"required"`
	IsVideosurgery bool            `json:"is_videosurgery"`
	Doctor         participantBody `json:"doctor"`
	Circulating    participantBody `json:"circulating"`
}

type createBody struct {
	InstrumentistID string `json:"instrumentist_id"`
	detailsBody
}

type voidBody struct {
	Reason string `json:"reason" validate:"required"`
}

type procedureResponse struct {
	ID               string           `json:"id"`
	InstrumentistID  string           `json:"instrumentist_id"`
	ProcedureDate    string           `json:"procedure_date"`
	StartTime        string           `json:"start_time"`
	EndTime          string           `json:"end_time"`
	DurationMinutes  int              `json:"duration_minutes"`
	PatientName      string           `json:"patient_name"`
	ProcedureType    string           `json:"procedure_type"`
	IsVideosurgery   bool             `json:"is_videosurgery"`
	Doctor           participantBody  `json:"doctor"`
	Circulating      participantBody  `json:"circulating"`
	CalculatedAmount string           `json:"calculated_amount"`
	PricingSnapshot  pricing.Snapshot `json:"pricing_snapshot"`
	Status           string           `json:"status"`
	PayoutBatchID    string           `json:"payout_batch_id,omitempty"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
	VoidReason       string           `json:"void_reason,omitempty"`
	VoidedAt         *time.Time       `json:"voided_at,omitempty"`
	CreatedBy        string           `json:"created_by,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

type listResponse struct {
	Items        []procedureResponse `json:"items"`
	PendingCount *int                `json:"pending_count,omitempty"`
	PendingTotal string              `json:"pending_total,omitempty"`
}

// ServeHTTP routes procedure requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == basePath {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
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
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, parts[0])
	case len(parts) == 1 && r.Method == http.MethodPut:
		h.handleUpdate(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "void" && r.Method == http.MethodPost:
		h.handleVoid(w, r, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createBody
	if !apihttp.DecodeJSON(w, r, &body) {
		return
	}
	subject := auth.SubjectFromContext(r.Context())
	instrumentistID := strings.TrimSpace(body.InstrumentistID)
	if instrumentistID == "" {
		instrumentistID = subject
	}
	if !auth.CanActFor(r.Context(), instrumentistID) {
		respondError(w, auth.ErrNotOwner)
		return
	}
	details, err := body.detailsBody.toDetails()
	if err != nil {
		respondError(w, err)
		return
	}
	p, err := h.service.Create(r.Context(), procedureapp.CreateCommand{
		InstrumentistID: instrumentistID,
		Details:         details,
		Actor:           subject,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	resp := toResponse(*p)
	apihttp.WriteJSON(w, http.StatusCreated, resp)
	audit.Record(r, h.auditLogger, audit.Event{
		Action:          "procedure.create",
		ResourceType:    "procedure",
		ResourceID:      p.ID,
		InstrumentistID: p.InstrumentistID,
		Meta:            resp,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := procedure.Filter{
		InstrumentistID: auth.ScopeInstrumentist(r.Context(), query.Get("instrumentist_id")),
		Status:          procedure.Status(query.Get("status")),
		PayoutBatchID:   query.Get("payout_batch_id"),
	}
	var err error
	if filter.From, err = parseDateParam(query.Get("from")); err != nil {
		respondError(w, err)
		return
	}
	if filter.To, err = parseDateParam(query.Get("to")); err != nil {
		respondError(w, err)
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

	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	resp := listResponse{Items: make([]procedureResponse, 0, len(items))}
	for _, item := range items {
		resp.Items = append(resp.Items, toResponse(item))
	}
	if filter.InstrumentistID != "" {
		summary, err := h.service.Pending(r.Context(), filter.InstrumentistID)
		if err != nil {
			respondError(w, err)
			return
		}
		resp.PendingCount = &summary.Count
		resp.PendingTotal = summary.Total.StringFixed(2)
	}
	apihttp.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if !auth.CanView(r.Context(), p.InstrumentistID) {
		respondError(w, auth.ErrNotOwner)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toResponse(*p))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var body detailsBody
	if !apihttp.DecodeJSON(w, r, &body) {
		return
	}
	current, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if !auth.CanActFor(r.Context(), current.InstrumentistID) {
		respondError(w, auth.ErrNotOwner)
		return
	}
	details, err := body.toDetails()
	if err != nil {
		respondError(w, err)
		return
	}
	p, err := h.service.Update(r.Context(), id, details, auth.SubjectFromContext(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	resp := toResponse(*p)
	apihttp.WriteJSON(w, http.StatusOK, resp)
	audit.Record(r, h.auditLogger, audit.Event{
		Action:          "procedure.update",
		ResourceType:    "procedure",
		ResourceID:      p.ID,
		InstrumentistID: p.InstrumentistID,
		Meta:            resp,
	})
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request, id string) {
	var body voidBody
	if !apihttp.DecodeJSON(w, r, &body) {
		return
	}
	p, err := h.service.Void(r.Context(), id, body.Reason, auth.SubjectFromContext(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toResponse(*p))
	audit.Record(r, h.auditLogger, audit.Event{
		Action:          "procedure.void",
		ResourceType:    "procedure",
		ResourceID:      p.ID,
		InstrumentistID: p.InstrumentistID,
		Meta:            map[string]string{"reason": p.VoidReason},
	})
}

func (b detailsBody) toDetails() (procedure.Details, error) {
	date, err := pricing.ParseDate(b.ProcedureDate)
	if err != nil {
		return procedure.Details{}, err
	}
	return procedure.Details{
		ProcedureDate:  date,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		PatientName:    b.PatientName,
		ProcedureType:  b.ProcedureType,
		IsVideosurgery: b.IsVideosurgery,
		Doctor:         procedure.Participant{UserID: b.Doctor.UserID, Name: b.Doctor.Name},
		Circulating:    procedure.Participant{UserID: b.Circulating.UserID, Name: b.Circulating.Name},
	}, nil
}

func parseDateParam(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return pricing.ParseDate(value)
}

func toResponse(p procedure.Procedure) procedureResponse {
	resp := procedureResponse{
		ID:               p.ID,
		InstrumentistID:  p.InstrumentistID,
		ProcedureDate:    p.ProcedureDate.Format("2006-01-02"),
		StartTime:        p.StartTime,
		EndTime:          p.EndTime,
		DurationMinutes:  p.DurationMinutes,
		PatientName:      p.PatientName,
		ProcedureType:    p.ProcedureType,
		IsVideosurgery:   p.IsVideosurgery,
		Doctor:           participantBody{UserID: p.Doctor.UserID, Name: p.Doctor.Name},
		Circulating:      participantBody{UserID: p.Circulating.UserID, Name: p.Circulating.Name},
		CalculatedAmount: p.CalculatedAmount.StringFixed(2),
		PricingSnapshot:  p.PricingSnapshot.Clone(),
		Status:           string(p.Status),
		PayoutBatchID:    p.PayoutBatchID,
		VoidReason:       p.VoidReason,
		CreatedBy:        p.CreatedBy,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if !p.PaidAt.IsZero() {
		paidAt := p.PaidAt
		resp.PaidAt = &paidAt
	}
	if !p.VoidedAt.IsZero() {
		voidedAt := p.VoidedAt
		resp.VoidedAt = &voidedAt
	}
	return resp
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pricing.ErrInvalidTimeFormat),
		errors.Is(err, pricing.ErrInvalidDate),
		errors.Is(err, pricing.ErrInvalidDuration),
		errors.Is(err, procedure.ErrDurationTooLong),
		errors.Is(err, procedure.ErrInvalidProcedure),
		errors.Is(err, procedure.ErrVoidReasonRequired):
		apihttp.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotOwner):
		apihttp.WriteError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, procedure.ErrProcedureNotFound),
		errors.Is(err, pricingapp.ErrInstrumentistNotFound),
		errors.Is(err, pricing.ErrSettingNotFound):
		apihttp.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, procedure.ErrInvalidTransition):
		apihttp.WriteError(w, http.StatusConflict, err.Error())
	default:
		apihttp.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

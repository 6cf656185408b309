package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	apihttp "qxlog/internal/api/http"
	"qxlog/internal/audit"
	"qxlog/internal/auth"
	pricingapp "qxlog/internal/pricing/application"
	pricing "qxlog/internal/pricing/domain"
)

// Handler serves /api/v1/pricing routes.
type Handler struct {
	service     *pricingapp.SettingService
	auditLogger audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *pricingapp.SettingService, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("pricing handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

type settingBody struct {
	DefaultRate              *decimal.Decimal `json:"default_rate" validate:"required"`
	VideoRate                *decimal.Decimal `json:"video_rate" validate:"required"`
	NightRate                *decimal.Decimal `json:"night_rate" validate:"required"`
	LongCaseRate             *decimal.Decimal `json:"long_case_rate" validate:"required"`
	LongCaseThresholdMinutes int              `json:"long_case_threshold_minutes" validate:"required"`
	NightStart               string           `json:"night_start" validate:"required"`
	NightEnd                 string           `json:"night_end" validate:"required"`
}

type settingResponse struct {
	DefaultRate              string    `json:"default_rate"`
	VideoRate                string    `json:"video_rate"`
	NightRate                string    `json:"night_rate"`
	LongCaseRate             string    `json:"long_case_rate"`
	LongCaseThresholdMinutes int       `json:"long_case_threshold_minutes"`
	NightStart               string    `json:"night_start"`
	NightEnd                 string    `json:"night_end"`
	UpdatedBy                string    `json:"updated_by,omitempty"`
	UpdatedAt                time.Time `json:"updated_at"`
}

type quoteBody struct {
	InstrumentistID string `json:"instrumentist_id" validate:"required"`
	IsVideosurgery  bool   `json:"is_videosurgery"`
	ProcedureDate   string `json:"procedure_date" validate:"required"`
	StartTime       string `json:"start_time" validate:"required"`
	EndTime         string `json:"end_time" validate:"required"`
}

type quoteResponse struct {
	Amount   string           `json:"amount"`
	Rule     pricing.Rule     `json:"rule"`
	Snapshot pricing.Snapshot `json:"snapshot"`
}

// ServeHTTP routes pricing requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/pricing/settings" && r.Method == http.MethodGet:
		h.handleGet(w, r)
	case r.URL.Path == "/api/v1/pricing/settings" && r.Method == http.MethodPut:
		h.handleUpdate(w, r)
	case r.URL.Path == "/api/v1/pricing/quote" && r.Method == http.MethodPost:
		h.handleQuote(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	setting, err := h.service.Current(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, toSettingResponse(setting))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var body settingBody
	if !apihttp.DecodeJSON(w, r, &body) {
		return
	}
	actor := auth.SubjectFromContext(r.Context())
	updated, err := h.service.Update(r.Context(), pricing.Setting{
		DefaultRate:              *body.DefaultRate,
		VideoRate:                *body.VideoRate,
		NightRate:                *body.NightRate,
		LongCaseRate:             *body.LongCaseRate,
		LongCaseThresholdMinutes: body.LongCaseThresholdMinutes,
		NightStart:               body.NightStart,
		NightEnd:                 body.NightEnd,
	}, actor)
	if err != nil {
		respondError(w, err)
		return
	}
	resp := toSettingResponse(updated)
	apihttp.WriteJSON(w, http.StatusOK, resp)
	audit.Record(r, h.auditLogger, audit.Event{
		Action:       "pricing.update",
		ResourceType: "pricing_setting",
		ResourceID:   "1",
		Meta:         resp,
	})
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	var body quoteBody
	if !apihttp.DecodeJSON(w, r, &body) {
		return
	}
	quote, err := h.service.Quote(r.Context(), pricingapp.QuoteRequest{
		InstrumentistID: body.InstrumentistID,
		IsVideosurgery:  body.IsVideosurgery,
		ProcedureDate:   body.ProcedureDate,
		StartTime:       body.StartTime,
		EndTime:         body.EndTime,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	apihttp.WriteJSON(w, http.StatusOK, quoteResponse{
		Amount:   quote.Amount.StringFixed(2),
		Rule:     quote.Snapshot.Rule,
		Snapshot: quote.Snapshot,
	})
}

func toSettingResponse(s pricing.Setting) settingResponse {
	return settingResponse{
		DefaultRate:              s.DefaultRate.StringFixed(2),
		VideoRate:                s.VideoRate.StringFixed(2),
		NightRate:                s.NightRate.StringFixed(2),
		LongCaseRate:             s.LongCaseRate.StringFixed(2),
		LongCaseThresholdMinutes: s.LongCaseThresholdMinutes,
		NightStart:               s.NightStart,
		NightEnd:                 s.NightEnd,
		UpdatedBy:                s.UpdatedBy,
		UpdatedAt:                s.UpdatedAt,
	}
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pricing.ErrConfigurationInvalid),
		errors.Is(err, pricing.ErrInvalidTimeFormat),
		errors.Is(err, pricing.ErrInvalidDate),
		errors.Is(err, pricing.ErrInvalidDuration):
		apihttp.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pricing.ErrSettingNotFound),
		errors.Is(err, pricingapp.ErrInstrumentistNotFound):
		apihttp.WriteError(w, http.StatusNotFound, err.Error())
	default:
		apihttp.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

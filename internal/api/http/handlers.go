package apihttp

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"time"

	procedure "qxlog/internal/procedures/domain"
)

const (
	timeLayout = time.RFC3339
	dateLayout = "2006-01-02"
)

// HealthHandler reports liveness and database reachability.
type HealthHandler struct {
	db *sql.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// ServeHTTP handles GET /healthz.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.db == nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db unavailable"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProcedureLister lists procedures for exports.
type ProcedureLister interface {
	List(ctx context.Context, filter procedure.Filter) ([]procedure.Procedure, error)
}

// ExportProceduresCSVHandler serves procedure ledger CSV exports.
type ExportProceduresCSVHandler struct {
	procedures ProcedureLister
}

// NewExportProceduresCSVHandler constructs an ExportProceduresCSVHandler.
func NewExportProceduresCSVHandler(procedures ProcedureLister) *ExportProceduresCSVHandler {
	return &ExportProceduresCSVHandler{procedures: procedures}
}

// ServeHTTP handles GET /api/v1/exports/procedures.csv.
func (h *ExportProceduresCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.procedures == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	from, err := parseDateQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseDateQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if to.Before(from) {
		http.Error(w, "to must not be before from", http.StatusBadRequest)
		return
	}

	status := procedure.Status(r.URL.Query().Get("status"))
	switch status {
	case "", procedure.StatusPending, procedure.StatusPaid, procedure.StatusVoid:
	default:
		http.Error(w, "status must be pending, paid or void", http.StatusBadRequest)
		return
	}

	rows, err := h.procedures.List(r.Context(), procedure.Filter{
		InstrumentistID: r.URL.Query().Get("instrumentist_id"),
		Status:          status,
		From:            from,
		To:              to,
	})
	if err != nil {
		http.Error(w, "query procedures error", http.StatusInternalServerError)
		return
	}

	data, err := encodeProceduresCSV(rows)
	if err != nil {
		http.Error(w, "encode csv error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=procedures.csv")
	_, _ = w.Write(data)
}

var procedureCSVHeader = []string{
	"id",
	"instrumentist_id",
	"procedure_date",
	"start_time",
	"end_time",
	"duration_minutes",
	"patient_name",
	"procedure_type",
	"is_videosurgery",
	"doctor",
	"circulating",
	"rule",
	"calculated_amount",
	"status",
	"payout_batch_id",
	"paid_at",
	"void_reason",
}

func encodeProceduresCSV(rows []procedure.Procedure) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(procedureCSVHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.ID,
			row.InstrumentistID,
			row.ProcedureDate.Format(dateLayout),
			row.StartTime,
			row.EndTime,
			strconv.Itoa(row.DurationMinutes),
			row.PatientName,
			row.ProcedureType,
			strconv.FormatBool(row.IsVideosurgery),
			participantLabel(row.Doctor),
			participantLabel(row.Circulating),
			string(row.PricingSnapshot.Rule),
			row.CalculatedAmount.StringFixed(2),
			string(row.Status),
			row.PayoutBatchID,
			formatTime(row.PaidAt),
			row.VoidReason,
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func participantLabel(p procedure.Participant) string {
	if p.Name != "" {
		return p.Name
	}
	return p.UserID
}

func parseDateQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be YYYY-MM-DD")
	}
	return parsed.UTC(), nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

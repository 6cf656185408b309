package apihttp

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	pricing "qxlog/internal/pricing/domain"
	procedure "qxlog/internal/procedures/domain"
)

type stubLister struct {
	filter procedure.Filter
	items  []procedure.Procedure
}

func (s *stubLister) List(_ context.Context, filter procedure.Filter) ([]procedure.Procedure, error) {
	s.filter = filter
	return s.items, nil
}

func TestExportProceduresCSV(t *testing.T) {
	lister := &stubLister{items: []procedure.Procedure{{
		ID:               "proc-1",
		InstrumentistID:  "inst-1",
		ProcedureDate:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		StartTime:        "22:00",
		EndTime:          "02:00",
		DurationMinutes:  240,
		PatientName:      "Doe, John",
		ProcedureType:    "Appendectomy",
		Doctor:           procedure.Participant{UserID: "doc-1"},
		CalculatedAmount: decimal.NewFromInt(350),
		PricingSnapshot:  pricing.Snapshot{Version: pricing.SnapshotVersion, Rule: pricing.RuleNight},
		Status:           procedure.StatusPending,
	}}}
	h := NewExportProceduresCSVHandler(lister)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/procedures.csv?from=2024-01-01&to=2024-01-31&instrumentist_id=inst-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "procedures.csv") {
		t.Fatalf("unexpected content disposition %q", got)
	}
	if lister.filter.InstrumentistID != "inst-1" || lister.filter.To.Day() != 31 {
		t.Fatalf("unexpected filter: %+v", lister.filter)
	}
	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	row := records[1]
	if row[6] != "Doe, John" || row[9] != "doc-1" || row[11] != "night_rate" || row[12] != "350.00" {
		t.Fatalf("unexpected row: %v", row)
	}
}

func TestExportProceduresCSV_RejectsBadRange(t *testing.T) {
	h := NewExportProceduresCSVHandler(&stubLister{})
	for _, query := range []string{
		"",
		"?from=2024-01-01",
		"?from=2024-02-01&to=2024-01-01",
		"?from=01/01/2024&to=2024-01-31",
		"?from=2024-01-01&to=2024-01-31&status=archived",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/procedures.csv"+query, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("query %q status=%d, want 400", query, rec.Code)
		}
	}
}

func TestEncodeProceduresCSV_HeaderOnly(t *testing.T) {
	data, err := encodeProceduresCSV(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 1 || len(records[0]) != len(procedureCSVHeader) {
		t.Fatalf("expected header row only, got %v", records)
	}
}

func TestHealthHandler_NilDB(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503", rec.Code)
	}
}

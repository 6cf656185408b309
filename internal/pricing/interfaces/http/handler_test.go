package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"qxlog/internal/audit"
	"qxlog/internal/auth"
	pricingapp "qxlog/internal/pricing/application"
	pricing "qxlog/internal/pricing/domain"
	"qxlog/internal/pricing/infrastructure/memory"
	"qxlog/internal/procedures/adapters/users"
)

type recordingAudit struct {
	entries []audit.Entry
}

func (a *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	a.entries = append(a.entries, entry)
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *recordingAudit) {
	t.Helper()
	setting := pricing.DefaultSetting()
	svc, err := pricingapp.NewSettingService(memory.NewSettingRepository(&setting), users.StaticDirectory{"inst-1": true}, nil, nil)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	recorder := &recordingAudit{}
	handler, err := NewHandler(svc, recorder)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return handler, recorder
}

func serve(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.RoleAdmin, "admin-1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_GetSetting(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := serve(h, http.MethodGet, "/api/v1/pricing/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp settingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DefaultRate != "200.00" || resp.NightStart != "22:00" {
		t.Fatalf("unexpected setting: %+v", resp)
	}
}

func TestHandler_UpdateSetting(t *testing.T) {
	h, recorder := newTestHandler(t)
	rec := serve(h, http.MethodPut, "/api/v1/pricing/settings", map[string]any{
		"default_rate":                "210.50",
		"video_rate":                  "300",
		"night_rate":                  "350",
		"long_case_rate":              "360",
		"long_case_threshold_minutes": 90,
		"night_start":                 "21:00",
		"night_end":                   "05:00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp settingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DefaultRate != "210.50" || resp.LongCaseThresholdMinutes != 90 || resp.UpdatedBy != "admin-1" {
		t.Fatalf("unexpected update response: %+v", resp)
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Action != "pricing.update" {
		t.Fatalf("expected one audit entry, got %+v", recorder.entries)
	}
}

func TestHandler_UpdateSettingRejectsNegativeRate(t *testing.T) {
	h, recorder := newTestHandler(t)
	rec := serve(h, http.MethodPut, "/api/v1/pricing/settings", map[string]any{
		"default_rate":                "-1",
		"video_rate":                  "300",
		"night_rate":                  "350",
		"long_case_rate":              "350",
		"long_case_threshold_minutes": 120,
		"night_start":                 "22:00",
		"night_end":                   "06:00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(recorder.entries) != 0 {
		t.Fatalf("rejected update must not be audited")
	}
}

func TestHandler_UpdateSettingAcceptsZeroRate(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := serve(h, http.MethodPut, "/api/v1/pricing/settings", map[string]any{
		"default_rate":                "0",
		"video_rate":                  "300",
		"night_rate":                  "350",
		"long_case_rate":              "350",
		"long_case_threshold_minutes": 120,
		"night_start":                 "22:00",
		"night_end":                   "06:00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	stored := serve(h, http.MethodGet, "/api/v1/pricing/settings", nil)
	var resp settingResponse
	if err := json.Unmarshal(stored.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DefaultRate != "0.00" {
		t.Fatalf("expected persisted zero rate, got %q", resp.DefaultRate)
	}
}

func TestHandler_UpdateSettingRequiresEveryRate(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := serve(h, http.MethodPut, "/api/v1/pricing/settings", map[string]any{
		"video_rate":                  "300",
		"night_rate":                  "350",
		"long_case_rate":              "350",
		"long_case_threshold_minutes": 120,
		"night_start":                 "22:00",
		"night_end":                   "06:00",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing default_rate, got %d", rec.Code)
	}
}

func TestHandler_Quote(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := serve(h, http.MethodPost, "/api/v1/pricing/quote", map[string]any{
		"instrumentist_id": "inst-1",
		"is_videosurgery":  false,
		"procedure_date":   "2024-01-01",
		"start_time":       "23:00",
		"end_time":         "00:30",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp quoteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Amount != "350.00" || resp.Rule != pricing.RuleNight {
		t.Fatalf("unexpected quote: %+v", resp)
	}
	if resp.Snapshot.Version != pricing.SnapshotVersion || resp.Snapshot.DurationMinutes != 90 {
		t.Fatalf("unexpected quote snapshot: %+v", resp.Snapshot)
	}
	if !strings.Contains(rec.Body.String(), `"rate":"350.00"`) {
		t.Fatalf("expected fixed-scale rate in %s", rec.Body.String())
	}

	missing := serve(h, http.MethodPost, "/api/v1/pricing/quote", map[string]any{
		"instrumentist_id": "ghost",
		"procedure_date":   "2024-01-01",
		"start_time":       "08:00",
		"end_time":         "09:00",
	})
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown instrumentist, got %d", missing.Code)
	}
}

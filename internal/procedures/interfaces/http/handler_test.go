package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"qxlog/internal/audit"
	"qxlog/internal/auth"
	pricingapp "qxlog/internal/pricing/application"
	pricing "qxlog/internal/pricing/domain"
	pricingmemory "qxlog/internal/pricing/infrastructure/memory"
	"qxlog/internal/procedures/adapters/users"
	procedureapp "qxlog/internal/procedures/application"
	"qxlog/internal/procedures/infrastructure/memory"
)

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	a.entries = append(a.entries, entry)
	a.mu.Unlock()
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *recordingAudit) {
	t.Helper()
	setting := pricing.DefaultSetting()
	pricingSvc, err := pricingapp.NewSettingService(pricingmemory.NewSettingRepository(&setting), users.StaticDirectory{"inst-1": true, "inst-2": false}, nil, nil)
	if err != nil {
		t.Fatalf("pricing service: %v", err)
	}
	svc, err := procedureapp.NewService(memory.NewRepository(), pricingSvc)
	if err != nil {
		t.Fatalf("procedure service: %v", err)
	}
	recorder := &recordingAudit{}
	handler, err := NewHandler(svc, recorder)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return handler, recorder
}

func doRequest(h http.Handler, method, path string, role auth.Role, subject string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(auth.WithIdentity(req.Context(), role, subject))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createPayload(start, end string, video bool) map[string]any {
	return map[string]any{
		"procedure_date":  "2024-01-01",
		"start_time":      start,
		"end_time":        end,
		"patient_name":    "Jane Roe",
		"procedure_type":  "Hernia repair",
		"is_videosurgery": video,
		"doctor":          map[string]string{"name": "Dr. Grey"},
	}
}

func TestHandler_CreateGetAndList(t *testing.T) {
	h, recorder := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, "/api/v1/procedures", auth.RoleInstrumentist, "inst-1", createPayload("23:00", "01:00", false))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}
	var created procedureResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.InstrumentistID != "inst-1" || created.CalculatedAmount != "350.00" || created.DurationMinutes != 120 {
		t.Fatalf("unexpected procedure: %+v", created)
	}
	if snap := created.PricingSnapshot; snap.Rule != pricing.RuleNight || snap.Version != pricing.SnapshotVersion {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Action != "procedure.create" || recorder.entries[0].InstrumentistID != "inst-1" {
		t.Fatalf("audit entries: %+v", recorder.entries)
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/procedures/"+created.ID, auth.RoleViewer, "viewer", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status=%d", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/api/v1/procedures?instrumentist_id=inst-1", auth.RoleViewer, "viewer", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status=%d", rec.Code)
	}
	var list listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Items) != 1 || list.PendingTotal != "350.00" || list.PendingCount == nil || *list.PendingCount != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestHandler_CreateValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, "/api/v1/procedures", auth.RoleInstrumentist, "inst-1", createPayload("9:00", "10:00", false))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad time status=%d", rec.Code)
	}
	rec = doRequest(h, http.MethodPost, "/api/v1/procedures", auth.RoleInstrumentist, "inst-1", createPayload("09:00", "09:00", false))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero duration status=%d", rec.Code)
	}
	payload := createPayload("09:00", "10:00", false)
	delete(payload, "patient_name")
	rec = doRequest(h, http.MethodPost, "/api/v1/procedures", auth.RoleInstrumentist, "inst-1", payload)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing patient status=%d", rec.Code)
	}
}

func TestHandler_InstrumentistCannotWriteForOthers(t *testing.T) {
	h, _ := newTestHandler(t)

	payload := createPayload("09:00", "10:00", false)
	payload["instrumentist_id"] = "inst-2"
	rec := doRequest(h, http.MethodPost, "/api/v1/procedures", auth.RoleInstrumentist, "inst-1", payload)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d, want 403", rec.Code)
	}
	rec = doRequest(h, http.MethodPost, "/api/v1/procedures", auth.RoleOperator, "op-1", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("operator create status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandler_UpdateAndVoid(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doRequest(h, http.MethodPost, "/api/v1/procedures", auth.RoleInstrumentist, "inst-1", createPayload("09:00", "10:00", false))
	var created procedureResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doRequest(h, http.MethodPut, "/api/v1/procedures/"+created.ID, auth.RoleInstrumentist, "inst-1", createPayload("09:00", "10:00", true))
	if rec.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rec.Code, rec.Body.String())
	}
	var updated procedureResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.CalculatedAmount != "300.00" {
		t.Fatalf("amount=%s, want 300.00", updated.CalculatedAmount)
	}

	rec = doRequest(h, http.MethodPost, "/api/v1/procedures/"+created.ID+"/void", auth.RoleOperator, "op-1", map[string]string{"reason": "duplicate"})
	if rec.Code != http.StatusOK {
		t.Fatalf("void status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = doRequest(h, http.MethodPut, "/api/v1/procedures/"+created.ID, auth.RoleInstrumentist, "inst-1", createPayload("09:00", "11:00", false))
	if rec.Code != http.StatusConflict {
		t.Fatalf("edit after void status=%d, want 409", rec.Code)
	}
	rec = doRequest(h, http.MethodGet, "/api/v1/procedures/missing", auth.RoleViewer, "viewer", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing status=%d", rec.Code)
	}
}

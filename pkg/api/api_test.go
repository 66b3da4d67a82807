package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/inferd/inferd/internal/lifecycle"
	"github.com/inferd/inferd/internal/metrics"
	"github.com/inferd/inferd/internal/procman"
	"github.com/inferd/inferd/internal/setup"
	"github.com/inferd/inferd/internal/sysmon"
	"github.com/inferd/inferd/pkg/auth"
	"github.com/inferd/inferd/pkg/models"
	"github.com/inferd/inferd/pkg/store"
)

type stubPM struct {
	startErr error
	stops    int
	deletes  int
}

func (s *stubPM) Start(name, usecase string, args []string) error { return s.startErr }
func (s *stubPM) Stop(name string) error                          { s.stops++; return nil }
func (s *stubPM) Delete(name string) error                        { s.deletes++; return nil }

type stubPorts struct{ next int }

func (s *stubPorts) Allocate() (int, error) { s.next++; return 6000 + s.next, nil }
func (s *stubPorts) Release(port int)       {}

func newTestRouter(t *testing.T, pm *stubPM) (*mux.Router, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	t.Cleanup(func() { st.Close() })

	catalog := models.DefaultCatalog()
	hook := lifecycle.NewHook(pm, &stubPorts{}, catalog, lifecycle.Paths{})
	procs := procman.NewManager(t.TempDir(), t.TempDir(), time.Second)
	collector := sysmon.NewCollector(st, time.Second, time.Hour)
	exporter := metrics.NewExporter()
	poller := metrics.NewPoller(st, exporter, time.Second)
	provisioner := setup.NewProvisioner(t.TempDir(), t.TempDir(), catalog)

	h := NewHandler(st, hook, procs, catalog, collector, poller, exporter, provisioner, auth.NewTokenManager(), "testhost")
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r, st
}

func doRequest(t *testing.T, r *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func createWorkload(t *testing.T, r *mux.Router) models.Workload {
	t.Helper()
	rr := doRequest(t, r, "POST", "/api/workloads", models.WorkloadRequest{
		Usecase: "object-detection",
		Devices: []string{"GPU.0"},
		Source:  models.Source{Kind: models.SourceCamera, Value: "0"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create returned %d: %s", rr.Code, rr.Body.String())
	}
	var w models.Workload
	if err := json.Unmarshal(rr.Body.Bytes(), &w); err != nil {
		t.Fatalf("Failed to decode workload: %v", err)
	}
	return w
}

func TestCreateWorkload(t *testing.T) {
	r, _ := newTestRouter(t, &stubPM{})

	w := createWorkload(t, r)
	if w.ID == 0 {
		t.Error("workload has no ID")
	}
	if w.Status != models.StatusPrepare {
		t.Errorf("status = %s, want prepare", w.Status)
	}
	if w.Model != "yolo11n" {
		t.Errorf("default model not applied: %s", w.Model)
	}
	if w.Task != "vision" {
		t.Errorf("task = %s, want vision", w.Task)
	}
}

func TestCreateWorkloadValidation(t *testing.T) {
	r, _ := newTestRouter(t, &stubPM{})

	rr := doRequest(t, r, "POST", "/api/workloads", models.WorkloadRequest{
		Usecase: "no-such-usecase",
		Devices: []string{"CPU"},
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown usecase returned %d, want 400", rr.Code)
	}

	rr = doRequest(t, r, "POST", "/api/workloads", models.WorkloadRequest{
		Usecase: "object-detection",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing devices returned %d, want 400", rr.Code)
	}
}

func TestCreateWorkloadLaunchFailure(t *testing.T) {
	r, st := newTestRouter(t, &stubPM{startErr: fmt.Errorf("spawn failed")})

	rr := doRequest(t, r, "POST", "/api/workloads", models.WorkloadRequest{
		Usecase: "object-detection",
		Devices: []string{"CPU"},
		Source:  models.Source{Kind: models.SourceCamera, Value: "0"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create returned %d", rr.Code)
	}
	var w models.Workload
	json.Unmarshal(rr.Body.Bytes(), &w)
	if w.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed after launch error", w.Status)
	}
	stored, _ := st.GetWorkload(w.ID)
	if stored.Status != models.StatusFailed || stored.Error == "" {
		t.Errorf("failure not persisted: %+v", stored)
	}
}

func TestWorkerStatusReport(t *testing.T) {
	r, _ := newTestRouter(t, &stubPM{})
	w := createWorkload(t, r)

	// Worker reports itself active with its port, the way the spawned
	// process does once its API is up
	status := models.StatusActive
	port := 6001
	rr := doRequest(t, r, "PATCH", fmt.Sprintf("/api/workloads/%d", w.ID), models.WorkloadPatch{
		Status: &status,
		Port:   &port,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("patch returned %d: %s", rr.Code, rr.Body.String())
	}
	var updated models.Workload
	json.Unmarshal(rr.Body.Bytes(), &updated)
	if updated.Status != models.StatusActive || updated.Port != 6001 {
		t.Errorf("status/port = %s/%d", updated.Status, updated.Port)
	}
}

func TestWorkerPortOnlyReport(t *testing.T) {
	r, st := newTestRouter(t, &stubPM{})
	w := createWorkload(t, r)

	port := 6100
	rr := doRequest(t, r, "PATCH", fmt.Sprintf("/api/workloads/%d", w.ID), models.WorkloadPatch{Port: &port})
	if rr.Code != http.StatusOK {
		t.Fatalf("patch returned %d: %s", rr.Code, rr.Body.String())
	}

	stored, err := st.GetWorkload(w.ID)
	if err != nil {
		t.Fatalf("GetWorkload failed: %v", err)
	}
	if stored.Port != 6100 {
		t.Errorf("port = %d, want 6100", stored.Port)
	}
	if stored.Status != models.StatusPrepare {
		t.Errorf("status changed by port-only patch: %s", stored.Status)
	}
}

func TestIssueAndRevokeToken(t *testing.T) {
	r, _ := newTestRouter(t, &stubPM{})

	rr := doRequest(t, r, "POST", "/api/auth/token", map[string]interface{}{"client": "dashboard"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("issue returned %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Client string `json:"client"`
		Token  string `json:"token"`
	}
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body.Client != "dashboard" || body.Token == "" {
		t.Errorf("unexpected token response: %+v", body)
	}

	rr = doRequest(t, r, "POST", "/api/auth/token", map[string]interface{}{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing client returned %d, want 400", rr.Code)
	}

	rr = doRequest(t, r, "DELETE", "/api/auth/token/dashboard", nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("revoke returned %d, want 204", rr.Code)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	r, _ := newTestRouter(t, &stubPM{})
	w := createWorkload(t, r)

	// prepare -> inactive is allowed, inactive -> active is not
	status := models.StatusInactive
	doRequest(t, r, "PATCH", fmt.Sprintf("/api/workloads/%d", w.ID), models.WorkloadPatch{Status: &status})

	bad := models.StatusActive
	rr := doRequest(t, r, "PATCH", fmt.Sprintf("/api/workloads/%d", w.ID), models.WorkloadPatch{Status: &bad})
	if rr.Code != http.StatusConflict {
		t.Errorf("invalid transition returned %d, want 409", rr.Code)
	}
}

func TestStopIssuesProcessStop(t *testing.T) {
	pm := &stubPM{}
	r, _ := newTestRouter(t, pm)
	w := createWorkload(t, r)

	status := models.StatusInactive
	rr := doRequest(t, r, "PATCH", fmt.Sprintf("/api/workloads/%d", w.ID), models.WorkloadPatch{Status: &status})
	if rr.Code != http.StatusOK {
		t.Fatalf("patch returned %d", rr.Code)
	}
	if pm.stops != 1 {
		t.Errorf("stops = %d, want 1", pm.stops)
	}
}

func TestDeleteWorkload(t *testing.T) {
	pm := &stubPM{}
	r, st := newTestRouter(t, pm)
	w := createWorkload(t, r)

	rr := doRequest(t, r, "DELETE", fmt.Sprintf("/api/workloads/%d", w.ID), nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete returned %d", rr.Code)
	}
	if pm.deletes != 1 {
		t.Errorf("deletes = %d, want 1", pm.deletes)
	}
	if _, err := st.GetWorkload(w.ID); err == nil {
		t.Error("workload still in store after delete")
	}

	rr = doRequest(t, r, "DELETE", fmt.Sprintf("/api/workloads/%d", w.ID), nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete returned %d, want 404", rr.Code)
	}
}

func TestGetWorkloadNotFound(t *testing.T) {
	r, _ := newTestRouter(t, &stubPM{})

	rr := doRequest(t, r, "GET", "/api/workloads/999", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("returned %d, want 404", rr.Code)
	}

	rr = doRequest(t, r, "GET", "/api/workloads/abc", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("non-numeric ID returned %d, want 400", rr.Code)
	}
}

func TestListWorkloadsByStatus(t *testing.T) {
	r, _ := newTestRouter(t, &stubPM{})
	createWorkload(t, r)
	createWorkload(t, r)

	rr := doRequest(t, r, "GET", "/api/workloads?status=prepare", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list returned %d", rr.Code)
	}
	var workloads []models.Workload
	json.Unmarshal(rr.Body.Bytes(), &workloads)
	if len(workloads) != 2 {
		t.Errorf("expected 2 prepare workloads, got %d", len(workloads))
	}

	rr = doRequest(t, r, "GET", "/api/workloads?status=active", nil)
	json.Unmarshal(rr.Body.Bytes(), &workloads)
	if len(workloads) != 0 {
		t.Errorf("expected 0 active workloads, got %d", len(workloads))
	}
}

func TestListUsecases(t *testing.T) {
	r, _ := newTestRouter(t, &stubPM{})

	rr := doRequest(t, r, "GET", "/api/usecases", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("usecases returned %d", rr.Code)
	}
	var usecases []models.Usecase
	json.Unmarshal(rr.Body.Bytes(), &usecases)
	if len(usecases) == 0 {
		t.Error("no usecases returned")
	}
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, &stubPM{})

	rr := doRequest(t, r, "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health returned %d", rr.Code)
	}
	var body map[string]string
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["status"] != "ok" || body["hostname"] != "testhost" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestUtilizationEndpoint(t *testing.T) {
	r, st := newTestRouter(t, &stubPM{})

	st.AddSample(&models.UtilizationSample{
		Timestamp:  time.Now().UnixMilli(),
		CPUPercent: 12,
	})

	rr := doRequest(t, r, "GET", "/api/system/utilization?limit=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("utilization returned %d", rr.Code)
	}
	var body struct {
		History []models.UtilizationSample `json:"history"`
	}
	json.Unmarshal(rr.Body.Bytes(), &body)
	if len(body.History) != 1 {
		t.Errorf("expected 1 history sample, got %d", len(body.History))
	}
}

func TestExportReportEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &stubPM{})
	createWorkload(t, r)

	rr := doRequest(t, r, "GET", "/api/reports/export?format=json", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export returned %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %s", ct)
	}
	var report struct {
		Workloads []json.RawMessage `json:"workloads"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("report does not decode: %v", err)
	}
	if len(report.Workloads) != 1 {
		t.Errorf("expected 1 workload in report, got %d", len(report.Workloads))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &stubPM{})

	rr := doRequest(t, r, "GET", "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics returned %d", rr.Code)
	}
}

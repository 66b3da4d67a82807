package api

import (
	"encoding/json"
	"net/http"

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

// Handler serves the dashboard API
type Handler struct {
	store       store.Store
	hook        *lifecycle.Hook
	procs       *procman.Manager
	catalog     *models.Catalog
	collector   *sysmon.Collector
	poller      *metrics.Poller
	exporter    *metrics.Exporter
	provisioner *setup.Provisioner
	tokens      *auth.TokenManager
	hostname    string
}

// NewHandler creates the API handler
func NewHandler(
	s store.Store,
	hook *lifecycle.Hook,
	procs *procman.Manager,
	catalog *models.Catalog,
	collector *sysmon.Collector,
	poller *metrics.Poller,
	exporter *metrics.Exporter,
	provisioner *setup.Provisioner,
	tokens *auth.TokenManager,
	hostname string,
) *Handler {
	return &Handler{
		store:       s,
		hook:        hook,
		procs:       procs,
		catalog:     catalog,
		collector:   collector,
		poller:      poller,
		exporter:    exporter,
		provisioner: provisioner,
		tokens:      tokens,
		hostname:    hostname,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()

	// Workload routes
	api.HandleFunc("/workloads", h.CreateWorkload).Methods("POST")
	api.HandleFunc("/workloads", h.ListWorkloads).Methods("GET")
	api.HandleFunc("/workloads/{id}", h.GetWorkload).Methods("GET")
	api.HandleFunc("/workloads/{id}", h.PatchWorkload).Methods("PATCH")
	api.HandleFunc("/workloads/{id}", h.DeleteWorkload).Methods("DELETE")
	api.HandleFunc("/workloads/{id}/logs", h.GetWorkloadLogs).Methods("GET")
	api.HandleFunc("/workloads/{id}/metrics", h.GetWorkloadMetrics).Methods("GET")

	// Catalog and hardware
	api.HandleFunc("/usecases", h.ListUsecases).Methods("GET")
	api.HandleFunc("/devices", h.ListDevices).Methods("GET")
	api.HandleFunc("/system/utilization", h.GetUtilization).Methods("GET")

	// Worker environment provisioning
	api.HandleFunc("/setup", h.ListWorkerEnvs).Methods("GET")
	api.HandleFunc("/setup/{usecase}", h.ProvisionWorker).Methods("POST")

	// Client tokens
	api.HandleFunc("/auth/token", h.IssueToken).Methods("POST")
	api.HandleFunc("/auth/token/{client}", h.RevokeToken).Methods("DELETE")

	// Reports
	api.HandleFunc("/reports/export", h.ExportReport).Methods("GET", "POST")

	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", h.exporter.Handler()).Methods("GET")
}

// Health reports daemon and store health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(); err != nil {
		http.Error(w, "Store unhealthy: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"hostname": h.hostname,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

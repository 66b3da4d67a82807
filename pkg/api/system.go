package api

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/inferd/inferd/internal/report"
	"github.com/inferd/inferd/internal/setup"
	"github.com/inferd/inferd/internal/sysmon"
)

// ListUsecases returns the usecase catalog
func (h *Handler) ListUsecases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalog.All())
}

// ListDevices returns the accelerator inventory of this host
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sysmon.DiscoverDevices())
}

// GetUtilization returns the latest sample plus recent history for charts
func (h *Handler) GetUtilization(w http.ResponseWriter, r *http.Request) {
	limit := 300
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	history, err := h.store.RecentSamples(limit)
	if err != nil {
		log.Printf("Error loading utilization history: %v", err)
		http.Error(w, "Failed to load utilization history", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current": h.collector.Latest(),
		"history": history,
	})
}

// ListWorkerEnvs reports the provisioning state of every usecase's worker
func (h *Handler) ListWorkerEnvs(w http.ResponseWriter, r *http.Request) {
	usecases := h.catalog.All()
	envs := make([]interface{}, 0, len(usecases))
	for _, uc := range usecases {
		envs = append(envs, h.provisioner.Inspect(uc.Name))
	}
	writeJSON(w, http.StatusOK, envs)
}

// ProvisionWorker starts provisioning a worker environment in the
// background. Progress is polled through ListWorkerEnvs.
func (h *Handler) ProvisionWorker(w http.ResponseWriter, r *http.Request) {
	usecase := mux.Vars(r)["usecase"]
	if h.catalog.Get(usecase) == nil {
		http.Error(w, "Unknown usecase", http.StatusNotFound)
		return
	}

	go func() {
		if err := h.provisioner.Provision(context.Background(), usecase); err != nil {
			log.Printf("Error provisioning %s: %v", usecase, err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"usecase": usecase,
		"status":  string(setup.StatusInstalling),
	})
}

// ExportReport streams a report in the requested format
func (h *Handler) ExportReport(w http.ResponseWriter, r *http.Request) {
	format := report.Format(r.URL.Query().Get("format"))

	rep, err := report.Build(h.store, h.hostname, sysmon.DiscoverDevices(), h.poller.All(), 0)
	if err != nil {
		log.Printf("Error building report: %v", err)
		http.Error(w, "Failed to build report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", report.ContentType(format))
	w.Header().Set("Content-Disposition", "attachment; filename="+report.Filename(rep, format))
	if err := report.Export(rep, format, w); err != nil {
		log.Printf("Error writing report: %v", err)
	}
}

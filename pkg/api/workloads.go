package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/inferd/inferd/pkg/models"
	"github.com/inferd/inferd/pkg/store"
)

// CreateWorkload handles workload creation. The workload is persisted in
// the prepare state and its worker process is launched.
func (h *Handler) CreateWorkload(w http.ResponseWriter, r *http.Request) {
	var req models.WorkloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	uc := h.catalog.Get(req.Usecase)
	if err := req.Validate(uc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	model := req.Model
	if model == "" && req.Metadata.CustomModel == "" {
		model = uc.DefaultModel
	}

	now := time.Now()
	workload := &models.Workload{
		Task:      uc.Task,
		Usecase:   uc.Name,
		Model:     model,
		Devices:   req.Devices,
		Source:    req.Source,
		Metadata:  req.Metadata,
		Status:    models.StatusPrepare,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateWorkload(workload); err != nil {
		log.Printf("Error creating workload: %v", err)
		http.Error(w, "Failed to create workload", http.StatusInternalServerError)
		return
	}

	if err := h.hook.AfterChange(nil, workload); err != nil {
		log.Printf("Error launching workload %d: %v", workload.ID, err)
		workload.Status = models.StatusFailed
		workload.Error = err.Error()
		if uerr := h.store.UpdateWorkloadStatus(workload.ID, models.StatusFailed, err.Error()); uerr != nil {
			log.Printf("Error recording launch failure for workload %d: %v", workload.ID, uerr)
		}
	}

	writeJSON(w, http.StatusCreated, workload)
}

// ListWorkloads returns all workloads, optionally filtered by status
func (h *Handler) ListWorkloads(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" {
		workloads, err := h.store.GetWorkloadsByStatus(models.WorkloadStatus(status))
		if err != nil {
			http.Error(w, "Failed to list workloads", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, workloads)
		return
	}
	writeJSON(w, http.StatusOK, h.store.GetAllWorkloads())
}

// GetWorkload returns one workload
func (h *Handler) GetWorkload(w http.ResponseWriter, r *http.Request) {
	workload, ok := h.workloadFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, workload)
}

// PatchWorkload applies a partial update. Workers report status and port
// through this endpoint; the dashboard stops and restarts workloads with it.
func (h *Handler) PatchWorkload(w http.ResponseWriter, r *http.Request) {
	workload, ok := h.workloadFromPath(w, r)
	if !ok {
		return
	}

	var patch models.WorkloadPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// A port-only report from the worker touches nothing else
	if patch.Status == nil && patch.Error == nil && patch.Port != nil {
		if err := h.store.UpdateWorkloadPort(workload.ID, *patch.Port); err != nil {
			log.Printf("Error recording port for workload %d: %v", workload.ID, err)
			http.Error(w, "Failed to update workload", http.StatusInternalServerError)
			return
		}
		workload.Port = *patch.Port
		workload.UpdatedAt = time.Now()
		writeJSON(w, http.StatusOK, workload)
		return
	}

	prev := *workload

	if patch.Status != nil {
		if err := models.ValidateTransition(workload.Status, *patch.Status); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		workload.Status = *patch.Status
	}
	if patch.Port != nil {
		workload.Port = *patch.Port
	}
	if patch.Error != nil {
		workload.Error = *patch.Error
	}
	workload.UpdatedAt = time.Now()

	if err := h.store.UpdateWorkload(workload); err != nil {
		log.Printf("Error updating workload %d: %v", workload.ID, err)
		http.Error(w, "Failed to update workload", http.StatusInternalServerError)
		return
	}

	if patch.Status != nil && prev.Status != workload.Status {
		if err := h.hook.AfterChange(&prev, workload); err != nil {
			log.Printf("Error applying lifecycle change for workload %d: %v", workload.ID, err)
			workload.Status = models.StatusFailed
			workload.Error = err.Error()
			if uerr := h.store.UpdateWorkloadStatus(workload.ID, models.StatusFailed, err.Error()); uerr != nil {
				log.Printf("Error recording lifecycle failure for workload %d: %v", workload.ID, uerr)
			}
		}
	}

	writeJSON(w, http.StatusOK, workload)
}

// DeleteWorkload stops the worker and removes the workload
func (h *Handler) DeleteWorkload(w http.ResponseWriter, r *http.Request) {
	workload, ok := h.workloadFromPath(w, r)
	if !ok {
		return
	}

	if err := h.hook.AfterChange(workload, nil); err != nil {
		log.Printf("Warning: lifecycle cleanup for workload %d: %v", workload.ID, err)
	}

	if err := h.store.DeleteWorkload(workload.ID); err != nil {
		log.Printf("Error deleting workload %d: %v", workload.ID, err)
		http.Error(w, "Failed to delete workload", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetWorkloadLogs returns the tail of the worker's log
func (h *Handler) GetWorkloadLogs(w http.ResponseWriter, r *http.Request) {
	workload, ok := h.workloadFromPath(w, r)
	if !ok {
		return
	}

	maxBytes := int64(64 * 1024)
	if v := r.URL.Query().Get("bytes"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			maxBytes = n
		}
	}

	logs, err := h.procs.Logs(workload.ProcessName(), maxBytes)
	if err != nil {
		http.Error(w, "No logs available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(logs))
}

// GetWorkloadMetrics returns the latest scraped worker metrics
func (h *Handler) GetWorkloadMetrics(w http.ResponseWriter, r *http.Request) {
	workload, ok := h.workloadFromPath(w, r)
	if !ok {
		return
	}

	m, found := h.poller.Latest(workload.ID)
	if !found {
		http.Error(w, "No metrics available", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// workloadFromPath resolves the {id} path variable to a workload, writing
// the error response itself when resolution fails.
func (h *Handler) workloadFromPath(w http.ResponseWriter, r *http.Request) (*models.Workload, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid workload ID", http.StatusBadRequest)
		return nil, false
	}
	workload, err := h.store.GetWorkload(id)
	if err != nil {
		if errors.Is(err, store.ErrWorkloadNotFound) {
			http.Error(w, "Workload not found", http.StatusNotFound)
		} else {
			log.Printf("Error loading workload %d: %v", id, err)
			http.Error(w, "Failed to load workload", http.StatusInternalServerError)
		}
		return nil, false
	}
	return workload, true
}

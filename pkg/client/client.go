package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inferd/inferd/internal/metrics"
	"github.com/inferd/inferd/internal/setup"
	"github.com/inferd/inferd/pkg/models"
	"github.com/inferd/inferd/pkg/retry"
)

// Client talks to the daemon API
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   retry.Config
}

// New creates a client for the daemon at baseURL
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   retry.DefaultConfig(),
	}
}

// do performs a request with retries on transient failures and decodes the
// JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	// 4xx responses are final; only transport failures and 5xx are retried
	var permanent error
	err := retry.Do(ctx, c.retry, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			err := fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
			if resp.StatusCode >= 500 {
				return err
			}
			permanent = err
			return nil
		}

		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	})
	if err != nil {
		return err
	}
	return permanent
}

// CreateWorkload submits a new workload
func (c *Client) CreateWorkload(ctx context.Context, req *models.WorkloadRequest) (*models.Workload, error) {
	var w models.Workload
	if err := c.do(ctx, http.MethodPost, "/api/workloads", req, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWorkloads returns all workloads
func (c *Client) ListWorkloads(ctx context.Context) ([]*models.Workload, error) {
	var out []*models.Workload
	if err := c.do(ctx, http.MethodGet, "/api/workloads", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetWorkload returns one workload
func (c *Client) GetWorkload(ctx context.Context, id int) (*models.Workload, error) {
	var w models.Workload
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/workloads/%d", id), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// PatchWorkload applies a partial update
func (c *Client) PatchWorkload(ctx context.Context, id int, patch *models.WorkloadPatch) (*models.Workload, error) {
	var w models.Workload
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/workloads/%d", id), patch, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// SetWorkloadStatus is a convenience wrapper for status-only patches
func (c *Client) SetWorkloadStatus(ctx context.Context, id int, status models.WorkloadStatus) (*models.Workload, error) {
	return c.PatchWorkload(ctx, id, &models.WorkloadPatch{Status: &status})
}

// DeleteWorkload removes a workload
func (c *Client) DeleteWorkload(ctx context.Context, id int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/workloads/%d", id), nil, nil)
}

// WorkloadLogs fetches the tail of a workload's log
func (c *Client) WorkloadLogs(ctx context.Context, id int, maxBytes int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/workloads/%d/logs?bytes=%d", c.baseURL, id, maxBytes), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("logs request returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	return string(data), err
}

// WorkloadMetrics fetches the latest worker metrics for a workload
func (c *Client) WorkloadMetrics(ctx context.Context, id int) (*metrics.WorkerMetrics, error) {
	var m metrics.WorkerMetrics
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/workloads/%d/metrics", id), nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListUsecases returns the usecase catalog
func (c *Client) ListUsecases(ctx context.Context) ([]*models.Usecase, error) {
	var out []*models.Usecase
	if err := c.do(ctx, http.MethodGet, "/api/usecases", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListDevices returns the host's accelerator inventory
func (c *Client) ListDevices(ctx context.Context) ([]models.Device, error) {
	var out []models.Device
	if err := c.do(ctx, http.MethodGet, "/api/devices", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Utilization is the system utilization response
type Utilization struct {
	Current models.UtilizationSample   `json:"current"`
	History []models.UtilizationSample `json:"history"`
}

// GetUtilization returns current and recent host utilization
func (c *Client) GetUtilization(ctx context.Context, limit int) (*Utilization, error) {
	var out Utilization
	path := "/api/system/utilization"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListWorkerEnvs returns worker provisioning states
func (c *Client) ListWorkerEnvs(ctx context.Context) ([]setup.WorkerEnv, error) {
	var out []setup.WorkerEnv
	if err := c.do(ctx, http.MethodGet, "/api/setup", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ProvisionWorker starts provisioning a worker environment
func (c *Client) ProvisionWorker(ctx context.Context, usecase string) error {
	return c.do(ctx, http.MethodPost, "/api/setup/"+usecase, nil, nil)
}

// ExportReport downloads a report and returns the raw bytes
func (c *Client) ExportReport(ctx context.Context, format string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/reports/export?format="+format, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("report export returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Health checks daemon health
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

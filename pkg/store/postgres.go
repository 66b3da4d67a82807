package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/inferd/inferd/pkg/models"
)

// PostgresStore is a PostgreSQL-based implementation of the data store
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(config Config) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workloads (
		id SERIAL PRIMARY KEY,
		task TEXT NOT NULL,
		usecase TEXT NOT NULL,
		model TEXT NOT NULL,
		devices JSONB NOT NULL,
		source_kind TEXT NOT NULL,
		source_value TEXT,
		metadata JSONB,
		status TEXT NOT NULL,
		port INTEGER DEFAULT 0,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS utilization_samples (
		ts BIGINT PRIMARY KEY,
		cpu_percent DOUBLE PRECISION NOT NULL,
		per_core JSONB,
		memory_percent DOUBLE PRECISION NOT NULL,
		memory_used BIGINT NOT NULL,
		memory_total BIGINT NOT NULL,
		gpu_percent DOUBLE PRECISION NOT NULL,
		npu_percent DOUBLE PRECISION NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workloads_status ON workloads(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateWorkload inserts a workload and assigns its ID
func (s *PostgresStore) CreateWorkload(w *models.Workload) error {
	devices, err := json.Marshal(w.Devices)
	if err != nil {
		return fmt.Errorf("failed to marshal devices: %w", err)
	}
	metadata, err := json.Marshal(w.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	err = s.db.QueryRow(`
		INSERT INTO workloads
		(task, usecase, model, devices, source_kind, source_value, metadata,
		 status, port, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, w.Task, w.Usecase, w.Model, string(devices), w.Source.Kind, w.Source.Value,
		string(metadata), w.Status, w.Port, w.Error, w.CreatedAt, w.UpdatedAt).Scan(&w.ID)
	return err
}

func (s *PostgresStore) scanWorkload(scan func(dest ...interface{}) error) (*models.Workload, error) {
	var w models.Workload
	var devicesJSON, metadataJSON sql.NullString
	var sourceValue, errorMsg sql.NullString

	err := scan(&w.ID, &w.Task, &w.Usecase, &w.Model, &devicesJSON, &w.Source.Kind,
		&sourceValue, &metadataJSON, &w.Status, &w.Port, &errorMsg,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if devicesJSON.Valid && devicesJSON.String != "" {
		if err := json.Unmarshal([]byte(devicesJSON.String), &w.Devices); err != nil {
			return nil, fmt.Errorf("failed to unmarshal devices: %w", err)
		}
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &w.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	w.Source.Value = sourceValue.String
	w.Error = errorMsg.String
	return &w, nil
}

// GetWorkload retrieves a workload by ID
func (s *PostgresStore) GetWorkload(id int) (*models.Workload, error) {
	row := s.db.QueryRow(`SELECT `+workloadColumns+` FROM workloads WHERE id = $1`, id)
	w, err := s.scanWorkload(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrWorkloadNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetAllWorkloads returns all workloads, newest first
func (s *PostgresStore) GetAllWorkloads() []*models.Workload {
	rows, err := s.db.Query(`SELECT ` + workloadColumns + ` FROM workloads ORDER BY created_at DESC`)
	if err != nil {
		return []*models.Workload{}
	}
	defer rows.Close()

	var workloads []*models.Workload
	for rows.Next() {
		w, err := s.scanWorkload(rows.Scan)
		if err != nil {
			continue
		}
		workloads = append(workloads, w)
	}
	return workloads
}

// GetWorkloadsByStatus returns workloads in the given status
func (s *PostgresStore) GetWorkloadsByStatus(status models.WorkloadStatus) ([]*models.Workload, error) {
	rows, err := s.db.Query(`SELECT `+workloadColumns+` FROM workloads WHERE status = $1 ORDER BY created_at DESC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workloads []*models.Workload
	for rows.Next() {
		w, err := s.scanWorkload(rows.Scan)
		if err != nil {
			return nil, err
		}
		workloads = append(workloads, w)
	}
	return workloads, rows.Err()
}

// UpdateWorkload replaces all mutable fields of a workload
func (s *PostgresStore) UpdateWorkload(w *models.Workload) error {
	devices, err := json.Marshal(w.Devices)
	if err != nil {
		return fmt.Errorf("failed to marshal devices: %w", err)
	}
	metadata, err := json.Marshal(w.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	result, err := s.db.Exec(`
		UPDATE workloads
		SET task = $1, usecase = $2, model = $3, devices = $4, source_kind = $5,
		    source_value = $6, metadata = $7, status = $8, port = $9, error = $10, updated_at = $11
		WHERE id = $12
	`, w.Task, w.Usecase, w.Model, string(devices), w.Source.Kind, w.Source.Value,
		string(metadata), w.Status, w.Port, w.Error, time.Now(), w.ID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateWorkloadStatus updates only the status and error message
func (s *PostgresStore) UpdateWorkloadStatus(id int, status models.WorkloadStatus, errorMsg string) error {
	result, err := s.db.Exec(`
		UPDATE workloads SET status = $1, error = $2, updated_at = $3 WHERE id = $4
	`, status, errorMsg, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateWorkloadPort records the port the worker reported
func (s *PostgresStore) UpdateWorkloadPort(id int, port int) error {
	result, err := s.db.Exec(`
		UPDATE workloads SET port = $1, updated_at = $2 WHERE id = $3
	`, port, time.Now(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteWorkload removes a workload
func (s *PostgresStore) DeleteWorkload(id int) error {
	result, err := s.db.Exec(`DELETE FROM workloads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// AddSample stores one utilization sample
func (s *PostgresStore) AddSample(sample *models.UtilizationSample) error {
	perCore, err := json.Marshal(sample.PerCore)
	if err != nil {
		return fmt.Errorf("failed to marshal per_core: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO utilization_samples
		(ts, cpu_percent, per_core, memory_percent, memory_used, memory_total, gpu_percent, npu_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ts) DO NOTHING
	`, sample.Timestamp, sample.CPUPercent, string(perCore), sample.MemoryPercent,
		sample.MemoryUsed, sample.MemoryTotal, sample.GPUPercent, sample.NPUPercent)
	return err
}

// RecentSamples returns up to limit samples, oldest first
func (s *PostgresStore) RecentSamples(limit int) ([]models.UtilizationSample, error) {
	rows, err := s.db.Query(`
		SELECT ts, cpu_percent, per_core, memory_percent, memory_used, memory_total, gpu_percent, npu_percent
		FROM utilization_samples ORDER BY ts DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.UtilizationSample
	for rows.Next() {
		var sample models.UtilizationSample
		var perCoreJSON sql.NullString
		if err := rows.Scan(&sample.Timestamp, &sample.CPUPercent, &perCoreJSON,
			&sample.MemoryPercent, &sample.MemoryUsed, &sample.MemoryTotal,
			&sample.GPUPercent, &sample.NPUPercent); err != nil {
			return nil, err
		}
		if perCoreJSON.Valid && perCoreJSON.String != "" && perCoreJSON.String != "null" {
			if err := json.Unmarshal([]byte(perCoreJSON.String), &sample.PerCore); err != nil {
				return nil, fmt.Errorf("failed to unmarshal per_core: %w", err)
			}
		}
		samples = append(samples, sample)
	}
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, rows.Err()
}

// PruneSamples deletes samples older than the given age
func (s *PostgresStore) PruneSamples(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	_, err := s.db.Exec(`DELETE FROM utilization_samples WHERE ts < $1`, cutoff)
	return err
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database
func (s *PostgresStore) HealthCheck() error {
	return s.db.Ping()
}

var _ Store = (*PostgresStore)(nil)
